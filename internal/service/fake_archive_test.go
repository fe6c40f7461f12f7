package service

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bigkaa/goartstore/asset-proxy/internal/archiveclient"
	"github.com/bigkaa/goartstore/asset-proxy/internal/domain/model"
)

const testIdentityField = "700"

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError + 4}))
}

// fakeArchive — ArchiveAPI в памяти.
type fakeArchive struct {
	mu      sync.Mutex
	assets  map[string][]model.Asset // identifier → совпадения
	search  []model.Asset
	queries []archiveclient.Query
	updates map[string]map[string]string

	findErr    error
	renderErr  error
	renderWait time.Duration

	findCalls   atomic.Int32
	renderCalls atomic.Int32
	// Содержимое по href рендишена или превью
	content map[string][]byte
}

func newFakeArchive() *fakeArchive {
	return &fakeArchive{
		assets:  map[string][]model.Asset{},
		updates: map[string]map[string]string{},
		content: map[string][]byte{},
	}
}

func (f *fakeArchive) FindByIdentifier(_ context.Context, _ []string, _, value string) (*model.Asset, error) {
	f.findCalls.Add(1)
	if f.findErr != nil {
		return nil, f.findErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	matches := f.assets[value]
	switch len(matches) {
	case 0:
		return nil, archiveclient.ErrNotFound
	case 1:
		a := matches[0]
		return &a, nil
	default:
		return nil, archiveclient.ErrMultipleMatches
	}
}

func (f *fakeArchive) Search(_ context.Context, _ []string, q archiveclient.Query, limit int) ([]model.Asset, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queries = append(f.queries, q)
	result := append([]model.Asset(nil), f.search...)
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (f *fakeArchive) RequestRender(ctx context.Context, href string) (string, error) {
	f.renderCalls.Add(1)
	if ctx.Err() != nil {
		return "", ctx.Err()
	}
	if f.renderErr != nil {
		return "", f.renderErr
	}
	if f.renderWait > 0 {
		time.Sleep(f.renderWait)
	}
	return "render:" + href, nil
}

func (f *fakeArchive) FetchRendition(ctx context.Context, location string) ([]byte, error) {
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	body, ok := f.content[location[len("render:"):]]
	if !ok {
		return nil, archiveclient.ErrUpstream
	}
	return body, nil
}

func (f *fakeArchive) FetchPreview(_ context.Context, href, previewToken string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	body, ok := f.content[href]
	if !ok || previewToken == "" {
		return nil, archiveclient.ErrNotFound
	}
	return body, nil
}

func (f *fakeArchive) UpdateMetadata(_ context.Context, href string, fields map[string]string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, exists := f.updates[href]; exists {
		panic("повторное обновление одного ассета: " + href)
	}
	f.updates[href] = fields
	return nil
}

// testAsset — ассет с оригиналом, двумя профилями и тремя превью.
func testAsset(identifier string) model.Asset {
	web, thumb := "web", "thumb"
	raw, _ := json.Marshal(identifier)
	return model.Asset{
		Href:           "/fotoweb/archives/5000/" + identifier,
		Filename:       "Summer Photo.jpg",
		Modified:       "2024-05-01T10:00:00Z",
		PhysicalFileID: "phys-1",
		Metadata:       map[string]model.MetadataValue{testIdentityField: {Value: raw}},
		Renditions: []model.Rendition{
			{Href: "/r/thumb", Profile: &thumb, Width: 200, Height: 150},
			{Href: "/r/web", Profile: &web, Width: 1600, Height: 1200},
			{Href: "/r/orig", Original: true, Width: 4000, Height: 3000},
		},
		Previews: []model.Preview{
			{Href: "/p/200", Size: 200, Width: 200, Height: 150},
			{Href: "/p/800", Size: 800, Width: 800, Height: 600},
			{Href: "/p/sq", Size: 400, Width: 400, Height: 400, Square: true},
		},
		PreviewToken: "preview-token",
	}
}

func (f *fakeArchive) withAsset(a model.Asset, identifier string) *fakeArchive {
	f.assets[identifier] = append(f.assets[identifier], a)
	for _, r := range a.Renditions {
		f.content[r.Href] = []byte("bytes:" + r.Href)
	}
	for _, p := range a.Previews {
		f.content[p.Href] = []byte("bytes:" + p.Href)
	}
	return f
}
