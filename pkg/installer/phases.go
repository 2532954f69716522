package installer

import (
	"context"
	"fmt"
	"time"

	"github.com/tierone/installd/pkg/lockfile"
	"github.com/tierone/installd/pkg/manager"
	"github.com/tierone/installd/pkg/network"
	"github.com/tierone/installd/pkg/progress"
	"github.com/tierone/installd/pkg/registration"
	"github.com/tierone/installd/pkg/software"
)

// ConfigPhase probes the network and the software and makes the software
// proposal.
func (i *Installer) ConfigPhase(ctx context.Context, tracker *progress.Tracker) error {
	if err := tracker.Start(3); err != nil {
		return err
	}

	if err := tracker.Step("Probing network"); err != nil {
		return err
	}
	if err := i.network.Probe(ctx); err != nil {
		return &manager.SubsystemError{Name: network.BusyName, Err: err}
	}

	if err := tracker.Step("Probing software"); err != nil {
		return err
	}
	if err := i.software.Probe(ctx); err != nil {
		return &manager.SubsystemError{Name: software.BusyName, Err: err}
	}

	if err := tracker.Step("Making software proposal"); err != nil {
		return err
	}
	if _, err := i.software.Propose(ctx); err != nil {
		return &manager.SubsystemError{Name: software.BusyName, Err: err}
	}

	return nil
}

// InstallPhase installs the proposal into the target system and writes the
// installation record.
func (i *Installer) InstallPhase(ctx context.Context, tracker *progress.Tracker) error {
	if err := tracker.Start(4); err != nil {
		return err
	}
	target := i.cfg.General.TargetDir

	if err := tracker.Step("Checking registration"); err != nil {
		return err
	}
	if !i.registrationSatisfied() {
		return &manager.SubsystemError{Name: registration.BusyName, Err: ErrRegistrationRequired}
	}

	if err := tracker.Step("Installing software"); err != nil {
		return err
	}
	proposal, ok := i.software.Proposal()
	if !ok {
		return &manager.SubsystemError{Name: software.BusyName, Err: software.ErrNoProposal}
	}
	results, err := i.software.Install(ctx, target)
	if err != nil {
		return &manager.SubsystemError{Name: software.BusyName, Err: err}
	}

	if err := tracker.Step("Writing network configuration"); err != nil {
		return err
	}
	if _, err := i.network.Install(ctx, target); err != nil {
		return &manager.SubsystemError{Name: network.BusyName, Err: err}
	}

	if err := tracker.Step("Saving installation record"); err != nil {
		return err
	}
	path := i.cfg.RecordPath()
	record, err := lockfile.Load(path)
	if err != nil {
		return fmt.Errorf("loading installation record: %w", err)
	}
	record.SetProduct(lockfile.ProductLock{
		Name:    proposal.Product.Name,
		Version: proposal.Product.Version,
		Arch:    proposal.Product.Arch,
	})
	record.Registered = i.registration.Registered()

	requested := make(map[string]string, len(proposal.Repositories))
	for _, pr := range proposal.Repositories {
		requested[pr.Name] = pr.RequestedRef
	}
	for _, name := range record.Names() {
		if _, ok := requested[name]; !ok {
			record.Remove(name)
		}
	}
	for _, res := range results {
		if prev, ok := record.Get(res.Name); ok && prev.IsStale(requested[res.Name]) {
			i.log.Info("replacing stale record entry", "repository", res.Name, "age", prev.Age().Round(time.Second))
		}
		record.Update(res.Name, lockfile.NewEntry(res.URL, res.Type, requested[res.Name], res.ResolvedRef))
	}

	if err := record.Save(path); err != nil {
		return fmt.Errorf("saving installation record: %w", err)
	}
	i.log.Info("installation record saved", "path", path, "repositories", record.Len())

	return nil
}

// Valid reports whether the install phase may run.
func (i *Installer) Valid() bool {
	return i.software.Valid() && i.registrationSatisfied()
}

func (i *Installer) registrationSatisfied() bool {
	return i.registration.Requirement() != registration.Mandatory || i.registration.Registered()
}
