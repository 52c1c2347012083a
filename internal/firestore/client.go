package firestore

import (
	"context"
	"fmt"

	"cloud.google.com/go/firestore"
	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/auth"
	"google.golang.org/api/option"
)

// Collection names
const (
	accountsCollection     = "pjledger-accounts"
	transactionsCollection = "pjledger-transactions"
	importsCollection      = "pjledger-imports"
	plansCollection        = "pjledger-category-plans"
	salesCollection        = "pjledger-sales"
)

// Client wraps Firestore client with ledger operations
type Client struct {
	Firestore *firestore.Client
	Auth      *auth.Client
	projectID string
}

func newApp(ctx context.Context, projectID, credentialsFile string) (*firebase.App, error) {
	conf := &firebase.Config{ProjectID: projectID}

	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}

	app, err := firebase.NewApp(ctx, conf, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Firebase app: %w", err)
	}
	return app, nil
}

// NewAuthClient creates only the Firebase Auth client, for deployments that
// keep the ledger in SQLite but still verify ID tokens.
func NewAuthClient(ctx context.Context, projectID, credentialsFile string) (*auth.Client, error) {
	app, err := newApp(ctx, projectID, credentialsFile)
	if err != nil {
		return nil, err
	}
	authClient, err := app.Auth(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create Auth client: %w", err)
	}
	return authClient, nil
}

// NewClient creates a new Firestore client. credentialsFile may be empty to
// use Application Default Credentials.
func NewClient(ctx context.Context, projectID, credentialsFile string) (*Client, error) {
	app, err := newApp(ctx, projectID, credentialsFile)
	if err != nil {
		return nil, err
	}

	firestoreClient, err := app.Firestore(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create Firestore client: %w", err)
	}

	authClient, err := app.Auth(ctx)
	if err != nil {
		firestoreClient.Close()
		return nil, fmt.Errorf("failed to create Auth client: %w", err)
	}

	return &Client{
		Firestore: firestoreClient,
		Auth:      authClient,
		projectID: projectID,
	}, nil
}

// Close closes the Firestore client
func (c *Client) Close() error {
	return c.Firestore.Close()
}

// docID scopes a document to its client so IDs only need to be unique per client.
func docID(clientID string, parts ...string) string {
	id := clientID
	for _, p := range parts {
		id += "_" + p
	}
	return id
}
