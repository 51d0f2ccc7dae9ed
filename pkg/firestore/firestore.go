// Package firestore provides a magma.Store backed by Firestore documents.
package firestore

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/zoobzio/magma"
)

// document is the stored shape of an artifact.
type document struct {
	ID       int64     `firestore:"id"`
	Route    string    `firestore:"route"`
	MIMEType string    `firestore:"mime_type"`
	Encoding string    `firestore:"encoding"`
	Data     []byte    `firestore:"data"`
	Modified time.Time `firestore:"modified"`
}

func toDocument(a magma.Artifact) document {
	return document{
		ID:       int64(a.ID),
		Route:    a.Route,
		MIMEType: a.MIMEType,
		Encoding: a.Encoding,
		Data:     a.Data,
		Modified: a.Modified,
	}
}

func (d document) artifact() magma.Artifact {
	return magma.Artifact{
		ID:       magma.FlowID(d.ID),
		Route:    d.Route,
		MIMEType: d.MIMEType,
		Encoding: d.Encoding,
		Data:     d.Data,
		Modified: d.Modified,
	}
}

// Store saves one document per flow in a collection, named by flow id.
// Documents are limited to 1MiB.
type Store struct {
	client     *firestore.Client
	collection string
}

// New creates a Store writing to collection.
func New(client *firestore.Client, collection string) *Store {
	return &Store{client: client, collection: collection}
}

var (
	_ magma.Store      = (*Store)(nil)
	_ magma.Loader     = (*Store)(nil)
	_ magma.Subscriber = (*Store)(nil)
)

// Save overwrites the flow's document.
func (s *Store) Save(ctx context.Context, artifact magma.Artifact) error {
	_, err := s.doc(artifact.ID).Set(ctx, toDocument(artifact))
	if err != nil {
		return fmt.Errorf("failed to set document %s: %w", artifact.Key(), err)
	}
	return nil
}

// Load reads the flow's document.
func (s *Store) Load(ctx context.Context, id magma.FlowID) (magma.Artifact, error) {
	snap, err := s.doc(id).Get(ctx)
	if status.Code(err) == codes.NotFound {
		return magma.Artifact{}, fmt.Errorf("flow %d: %w", id, magma.ErrNotFound)
	}
	if err != nil {
		return magma.Artifact{}, fmt.Errorf("failed to get document %d: %w", id, err)
	}

	var d document
	if err := snap.DataTo(&d); err != nil {
		return magma.Artifact{}, fmt.Errorf("decode document %d: %w", id, err)
	}
	return d.artifact(), nil
}

// Watch emits the flow's artifact on every document change using a
// realtime listener. The current document is emitted first if it exists.
func (s *Store) Watch(ctx context.Context, id magma.FlowID) (<-chan magma.Artifact, error) {
	ref := s.doc(id)
	out := make(chan magma.Artifact)

	go func() {
		defer close(out)

		snapshots := ref.Snapshots(ctx)
		defer snapshots.Stop()

		for {
			snap, err := snapshots.Next()
			if err != nil {
				if ctx.Err() != nil || status.Code(err) == codes.Canceled {
					return
				}
				continue
			}
			if !snap.Exists() {
				continue
			}

			var d document
			if err := snap.DataTo(&d); err != nil {
				continue
			}

			select {
			case out <- d.artifact():
			case <-ctx.Done():
				return
			}
		}
	}()

	return out, nil
}

func (s *Store) doc(id magma.FlowID) *firestore.DocumentRef {
	return s.client.Collection(s.collection).Doc(magma.ArtifactKey(id))
}
