package handlers

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bigkaa/goartstore/asset-proxy/internal/archiveclient"
	"github.com/bigkaa/goartstore/asset-proxy/internal/domain/model"
)

// fakeArchive — удалённый архив в памяти.
type fakeArchive struct {
	mu      sync.Mutex
	assets  map[string]model.Asset
	content map[string][]byte
	updates map[string]map[string]string
	queries []archiveclient.Query

	renderWait  time.Duration
	renderCalls atomic.Int32
	findCalls   atomic.Int32
}

func newFakeArchive() *fakeArchive {
	return &fakeArchive{
		assets:  map[string]model.Asset{},
		content: map[string][]byte{},
		updates: map[string]map[string]string{},
	}
}

func (f *fakeArchive) add(identifier string, mutate ...func(*model.Asset)) model.Asset {
	a := testAsset(identifier)
	for _, m := range mutate {
		m(&a)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.assets[identifier] = a
	for _, r := range a.Renditions {
		f.content[r.Href] = []byte("bytes:" + r.Href)
	}
	for _, p := range a.Previews {
		f.content[p.Href] = []byte("bytes:" + p.Href)
	}
	return a
}

func (f *fakeArchive) FindByIdentifier(_ context.Context, _ []string, _, value string) (*model.Asset, error) {
	f.findCalls.Add(1)
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.assets[value]
	if !ok {
		return nil, archiveclient.ErrNotFound
	}
	return &a, nil
}

func (f *fakeArchive) Search(_ context.Context, _ []string, q archiveclient.Query, limit int) ([]model.Asset, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queries = append(f.queries, q)
	result := make([]model.Asset, 0, len(f.assets))
	for _, id := range []string{"rabc234", "rxyz777", "tpub222"} {
		if a, ok := f.assets[id]; ok {
			result = append(result, a)
		}
	}
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (f *fakeArchive) RequestRender(_ context.Context, href string) (string, error) {
	f.renderCalls.Add(1)
	if f.renderWait > 0 {
		time.Sleep(f.renderWait)
	}
	return "render:" + href, nil
}

func (f *fakeArchive) FetchRendition(_ context.Context, location string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	body, ok := f.content[location[len("render:"):]]
	if !ok {
		return nil, archiveclient.ErrUpstream
	}
	return body, nil
}

func (f *fakeArchive) FetchPreview(_ context.Context, href, _ string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	body, ok := f.content[href]
	if !ok {
		return nil, archiveclient.ErrNotFound
	}
	return body, nil
}

func (f *fakeArchive) UpdateMetadata(_ context.Context, href string, fields map[string]string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updates[href] = fields
	return nil
}

func (f *fakeArchive) updatesFor(href string) map[string]string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.updates[href]
}

const (
	testIdentityField = "700"
	testSHA256Field   = "710"
	testPublicField   = "601"
)

// testAsset — JPEG с оригиналом, двумя профилями и тремя превью.
func testAsset(identifier string) model.Asset {
	web, thumb := "web", "thumb"
	id, _ := json.Marshal(identifier)
	title, _ := json.Marshal("Летнее фото")
	return model.Asset{
		Href:           "/fotoweb/archives/5000/" + identifier,
		Filename:       "Summer Photo.jpg",
		Doctype:        "image",
		Created:        "2024-04-01T10:00:00Z",
		Modified:       "2024-05-01T10:00:00Z",
		FileSize:       4096,
		PhysicalFileID: "phys-" + identifier,
		Metadata:       map[string]model.MetadataValue{testIdentityField: {Value: id}},
		BuiltinFields:  []model.BuiltinField{{Field: "title", Value: title}},
		Renditions: []model.Rendition{
			{Href: "/r/" + identifier + "/thumb", Profile: &thumb, Width: 200, Height: 150},
			{Href: "/r/" + identifier + "/web", Profile: &web, Width: 1600, Height: 1200},
			{Href: "/r/" + identifier + "/orig", Original: true, Width: 4000, Height: 3000},
		},
		Previews: []model.Preview{
			{Href: "/p/" + identifier + "/200", Size: 200, Width: 200, Height: 150},
			{Href: "/p/" + identifier + "/800", Size: 800, Width: 800, Height: 600},
		},
		PreviewToken: "preview-token",
	}
}

func makePublic(a *model.Asset) {
	raw, _ := json.Marshal("public")
	a.Metadata[testPublicField] = model.MetadataValue{Value: raw}
}
