package journal

import (
	"context"

	"cloud.google.com/go/firestore"
)

// FirestoreSink is the optional reference Sink: one document per row in a
// single collection, timestamped client-side. A real deployment would
// shard/retain/export this collection; that policy is the implementer's
// choice per spec §1.
type FirestoreSink struct {
	client     *firestore.Client
	collection string
}

// NewFirestoreSink dials a Firestore client for the given GCP project and
// targets collection, mirroring the teacher's firebase.google.com/go app
// construction style (services/user.go's InitFirebase) but scoped to
// Firestore rather than Auth.
func NewFirestoreSink(ctx context.Context, projectID, collection string) (*FirestoreSink, error) {
	client, err := firestore.NewClient(ctx, projectID)
	if err != nil {
		return nil, err
	}
	return &FirestoreSink{client: client, collection: collection}, nil
}

func (f *FirestoreSink) Append(ctx context.Context, row Row) error {
	_, _, err := f.client.Collection(f.collection).Add(ctx, map[string]interface{}{
		"kind":      row.Kind,
		"symbol":    row.Symbol,
		"timestamp": row.Timestamp,
		"payload":   row.Payload,
	})
	return err
}

func (f *FirestoreSink) Close() error {
	return f.client.Close()
}
