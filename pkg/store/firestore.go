package store

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sort"

	"cloud.google.com/go/firestore"
	"github.com/heatpilot/heatpilot/pkg/log"
	"github.com/levenlabs/go-lflag"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Firestore implements the Store interface using Google Cloud Firestore.
// Each key is a document under hubs/<hubID>/settings holding the value as a
// JSON string for portability.
type Firestore struct {
	client    *firestore.Client
	projectID string
	database  string
	hubID     string
}

// configuredFirestore sets up the Firestore store.
// It registers flags for configuration.
func configuredFirestore() *Firestore {
	projectID := lflag.String("firestore-project-id", "", "Google Cloud Project ID for Firestore")
	database := lflag.String("firestore-database", "", "Google Cloud Firestore Database")
	emulator := lflag.String("firestore-emulator", "", "Use Firestore emulator")
	hubID := lflag.String("hub-id", "default", "Hub identifier to namespace settings under")

	f := &Firestore{}

	lflag.Do(func() {
		f.projectID = *projectID
		f.database = *database
		f.hubID = *hubID

		// set this because that's how firestore client expects it
		if *emulator != "" {
			os.Setenv("FIRESTORE_EMULATOR_HOST", *emulator)
		}
	})

	return f
}

// Validate checks if the store is properly configured.
func (f *Firestore) Validate() error {
	if f.hubID == "" {
		return fmt.Errorf("hub-id is required")
	}
	return nil
}

// Init initializes the Firestore client.
// This must be called before using the store methods.
func (f *Firestore) Init(ctx context.Context) error {
	projectID := f.projectID
	if projectID == "" {
		projectID = firestore.DetectProjectID
	}
	database := f.database
	if database == "" {
		database = firestore.DefaultDatabaseID
	}
	client, err := firestore.NewClientWithDatabase(ctx, projectID, database)
	if err != nil {
		return fmt.Errorf("failed to create firestore client (project=%s, database=%s): %w", projectID, database, err)
	}
	f.client = client
	return nil
}

// Close closes the Firestore client connection.
func (f *Firestore) Close() error {
	if f.client != nil {
		return f.client.Close()
	}
	return nil
}

func (f *Firestore) doc(key string) (*firestore.DocumentRef, error) {
	if key == "" {
		return nil, fmt.Errorf("key cannot be empty")
	}
	return f.client.Collection("hubs").Doc(f.hubID).Collection("settings").Doc(key), nil
}

// Get retrieves the JSON value stored at key.
func (f *Firestore) Get(ctx context.Context, key string) (json.RawMessage, bool, error) {
	ref, err := f.doc(key)
	if err != nil {
		return nil, false, err
	}
	doc, err := ref.Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("failed to fetch doc for %q: %w", key, err)
	}

	val, err := doc.DataAt("json")
	if err != nil {
		log.Ctx(ctx).WarnContext(ctx, "settings doc missing json", slog.String("key", key))
		return nil, false, fmt.Errorf("document %q missing 'json' field: %w", key, err)
	}

	jsonStr, ok := val.(string)
	if !ok {
		log.Ctx(ctx).WarnContext(ctx, "settings doc json not string", slog.String("key", key))
		return nil, false, fmt.Errorf("document %q 'json' field is not a string", key)
	}
	return json.RawMessage(jsonStr), true, nil
}

// Keys lists document IDs under the hub's settings collection with the
// given prefix.
func (f *Firestore) Keys(ctx context.Context, prefix string) ([]string, error) {
	coll := f.client.Collection("hubs").Doc(f.hubID).Collection("settings")
	query := coll.Query
	if prefix != "" {
		//  sorts after every other valid UTF-8 character, giving a
		// prefix range scan on document IDs.
		query = coll.
			Where(firestore.DocumentID, ">=", coll.Doc(prefix)).
			Where(firestore.DocumentID, "<", coll.Doc(prefix+""))
	}
	iter := query.Documents(ctx)
	defer iter.Stop()

	var keys []string
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("error iterating keys: %w", err)
		}
		keys = append(keys, doc.Ref.ID)
	}
	sort.Strings(keys)
	return keys, nil
}

// Set writes value at key as a JSON string.
func (f *Firestore) Set(ctx context.Context, key string, value any) error {
	jsonBytes, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal value for %q: %w", key, err)
	}

	ref, err := f.doc(key)
	if err != nil {
		return err
	}
	_, err = ref.Set(ctx, map[string]interface{}{
		"json": string(jsonBytes),
	})
	if err != nil {
		return fmt.Errorf("failed to save %q: %w", key, err)
	}
	return nil
}
