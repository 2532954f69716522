package network

import "context"

// Client is the connection manager the network subsystem drives.
type Client interface {
	Connections(ctx context.Context) ([]Connection, error)
	Connection(ctx context.Context, id string) (Connection, error)
	AddConnection(ctx context.Context, c Connection) (Connection, error)
	UpdateConnection(ctx context.Context, c Connection) error
	DeleteConnection(ctx context.Context, id string) error
	ActivateConnection(ctx context.Context, id string) error
	ActiveConnections(ctx context.Context) ([]ActiveConnection, error)
	AccessPoints(ctx context.Context) ([]AccessPoint, error)
	Hostname(ctx context.Context) (string, error)
}
