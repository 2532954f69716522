package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/tierone/installd/pkg/config"
	"github.com/tierone/installd/pkg/downloader"
	"github.com/tierone/installd/pkg/software"
	"github.com/tierone/installd/pkg/ui"
)

var (
	repoJSON  bool
	repoLocal bool
	repoTag   string

	addName    string
	addType    string
	addBranch  string
	addTag     string
	addCommit  string
	addTags    []string
	addProduct string

	removeForce bool
)

var repoCmd = &cobra.Command{
	Use:     "repo",
	Aliases: []string{"repos", "repository"},
	Short:   "Manage repositories",
	Long: `List the repositories with their probe results, or edit the
repositories of the local configuration.`,
}

var repoListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List repositories",
	Long: `List the repositories and the result of the last probe.

With --local the configuration file is read instead of asking the service.`,
	Args: cobra.NoArgs,
	RunE: runRepoList,
}

var repoAddCmd = &cobra.Command{
	Use:   "add <url>",
	Short: "Add a repository to the configuration",
	Long: `Add a repository to the installd configuration.

The repository type is auto-detected from the URL, but can be
overridden with --type. Use --product to add the repository to an
existing product.`,
	Args: cobra.ExactArgs(1),
	RunE: runRepoAdd,
}

var repoRemoveCmd = &cobra.Command{
	Use:     "remove <repository>",
	Aliases: []string{"rm"},
	Short:   "Remove a repository from the configuration",
	Long: `Remove a repository from the installd configuration. Products
referencing the repository no longer install from it.`,
	Args: cobra.ExactArgs(1),
	RunE: runRepoRemove,
}

func init() {
	repoListCmd.Flags().BoolVar(&repoJSON, "json", false, "output as JSON")
	repoListCmd.Flags().BoolVar(&repoLocal, "local", false, "read the configuration file")
	repoListCmd.Flags().StringVarP(&repoTag, "tag", "t", "", "filter by tag (with --local)")

	repoAddCmd.Flags().StringVarP(&addName, "name", "n", "", "repository name (required)")
	repoAddCmd.Flags().StringVarP(&addType, "type", "t", "", "repository type (git or http)")
	repoAddCmd.Flags().StringVarP(&addBranch, "branch", "b", "", "git branch")
	repoAddCmd.Flags().StringVar(&addTag, "tag", "", "git tag")
	repoAddCmd.Flags().StringVar(&addCommit, "commit", "", "git commit SHA")
	repoAddCmd.Flags().StringSliceVar(&addTags, "tags", nil, "tags for filtering")
	repoAddCmd.Flags().StringVarP(&addProduct, "product", "p", "", "add the repository to this product")
	_ = repoAddCmd.MarkFlagRequired("name") // Safe to ignore - panics caught at startup

	repoRemoveCmd.Flags().BoolVarP(&removeForce, "force", "f", false, "don't prompt for confirmation")

	repoCmd.AddCommand(repoListCmd, repoAddCmd, repoRemoveCmd)
	rootCmd.AddCommand(repoCmd)
}

func runRepoList(cmd *cobra.Command, args []string) error {
	var repos []software.Repository
	if repoLocal {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		configured := cfg.Repositories
		if repoTag != "" {
			configured = cfg.GetRepositoriesByTag(repoTag)
		}
		for _, r := range configured {
			repos = append(repos, software.Repository{Name: r.Name, URL: r.URL, Type: string(r.Type)})
		}
	} else {
		var err error
		repos, err = newClient().Repositories(cmd.Context())
		if err != nil {
			return err
		}
	}

	if repoJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(repos)
	}

	if len(repos) == 0 {
		fmt.Println("No repositories found")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "REPOSITORY\tTYPE\tPROBE\tREVISION\tURL")
	for _, r := range repos {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", r.Name, r.Type, probeState(r), shortRef(r.ResolvedRef), r.URL)
	}
	return w.Flush()
}

func probeState(r software.Repository) string {
	switch {
	case !r.Probed:
		return "-"
	case r.Success:
		return "ok"
	default:
		return "failed"
	}
}

func shortRef(ref string) string {
	if ref == "" {
		return "-"
	}
	if len(ref) > 12 {
		return ref[:12]
	}
	return ref
}

func runRepoAdd(cmd *cobra.Command, args []string) error {
	url := args[0]

	refCount := 0
	for _, ref := range []string{addBranch, addTag, addCommit} {
		if ref != "" {
			refCount++
		}
	}
	if refCount > 1 {
		return fmt.Errorf("only one of --branch, --tag, or --commit can be specified")
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	repoType := config.RepositoryType(addType)
	if repoType == "" {
		repoType = downloader.DetectType(url)
	}

	repo := config.Repository{
		Name:   addName,
		URL:    url,
		Type:   repoType,
		Branch: addBranch,
		Tag:    addTag,
		Commit: addCommit,
		Tags:   addTags,
	}
	if err := cfg.AddRepository(repo); err != nil {
		return err
	}
	if addProduct != "" {
		if err := cfg.AddRepoToProduct(addProduct, repo.Name); err != nil {
			return err
		}
	}

	if err := config.ValidateConfig(cfg); err != nil {
		return err
	}
	if err := cfg.Save(); err != nil {
		return fmt.Errorf("failed to save config: %w", err)
	}

	if !quiet() {
		fmt.Printf("Added repository: %s\n", repo.Name)
		fmt.Printf("  URL:  %s\n", repo.URL)
		fmt.Printf("  Type: %s\n", repo.Type)
		if ref := repo.GetEffectiveRef(); ref != "" {
			fmt.Printf("  Ref:  %s\n", ref)
		}
	}
	return nil
}

func runRepoRemove(cmd *cobra.Command, args []string) error {
	name := args[0]

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if _, ok := cfg.GetRepository(name); !ok {
		return fmt.Errorf("repository not found: %s", name)
	}

	if !removeForce && !confirm(fmt.Sprintf("Remove repository '%s' from configuration?", name)) {
		fmt.Println("Cancelled")
		return nil
	}

	if err := cfg.RemoveRepository(name); err != nil {
		return err
	}
	if err := cfg.Save(); err != nil {
		return fmt.Errorf("failed to save config: %w", err)
	}

	if !quiet() {
		fmt.Printf("%s Removed repository: %s\n", ui.SymbolSuccess, name)
	}
	return nil
}

func confirm(prompt string) bool {
	reader := bufio.NewReader(os.Stdin)
	fmt.Printf("%s [y/N]: ", prompt)

	response, err := reader.ReadString('\n')
	if err != nil {
		return false
	}

	response = strings.ToLower(strings.TrimSpace(response))
	return response == "y" || response == "yes"
}
