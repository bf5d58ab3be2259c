package registry

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/socaity/fastsdk-go/registry/store/memory"
	"github.com/socaity/fastsdk-go/sdkerr"
	"github.com/socaity/fastsdk-go/service"
)

func testDefinition(id, name string) *service.Definition {
	return &service.Definition{
		ID:            id,
		DisplayName:   name,
		Specification: service.SpecFastTaskAPI,
		Endpoints: []service.Endpoint{
			{ID: "predict", Path: "/predict", Method: "post"},
		},
	}
}

func TestAddAndGetService(t *testing.T) {
	ctx := context.Background()
	r := New()

	def, err := r.AddService(ctx, testDefinition("svc-1", "Face2Face"))
	require.NoError(t, err)
	assert.Equal(t, "svc-1", def.ID)

	byID, err := r.Get(ctx, "svc-1")
	require.NoError(t, err)
	assert.Same(t, byID, mustGet(t, r, "Face2Face"), "id and name resolve to the same definition")
	assert.Same(t, byID, mustGet(t, r, "face2face"), "name lookup is normalized")

	_, err = r.Get(ctx, "missing")
	assert.True(t, sdkerr.IsKind(err, sdkerr.KindNotFound))
}

func mustGet(t *testing.T, r *Registry, idOrName string) *service.Definition {
	t.Helper()
	def, err := r.Get(context.Background(), idOrName)
	require.NoError(t, err)
	return def
}

func TestAddServiceDuplicateID(t *testing.T) {
	ctx := context.Background()
	r := New()

	_, err := r.AddService(ctx, testDefinition("svc-1", "one"))
	require.NoError(t, err)
	_, err = r.AddService(ctx, testDefinition("svc-1", "two"))
	assert.True(t, sdkerr.IsKind(err, sdkerr.KindDuplicateID))
}

func TestAddServiceNameCollisionOverwrites(t *testing.T) {
	ctx := context.Background()
	r := New()

	_, err := r.AddService(ctx, testDefinition("svc-1", "upscaler"))
	require.NoError(t, err)
	_, err = r.AddService(ctx, testDefinition("svc-2", "upscaler"))
	require.NoError(t, err, "display names repeat, ids enforce uniqueness")

	assert.Equal(t, "svc-2", mustGet(t, r, "upscaler").ID, "name resolves to the newer service")
	assert.Equal(t, "svc-1", mustGet(t, r, "svc-1").ID, "the older service stays reachable by id")
}

func TestAddServiceOptions(t *testing.T) {
	ctx := context.Background()
	r := New()

	def, err := r.AddService(ctx, testDefinition("", "anything"),
		WithServiceID("forced-id"),
		WithServiceName("forced name"),
		WithAddress("https://api.example.com/v1"),
		WithCategories("img2img"),
		WithFamily("sdxl"),
		WithDescription("a test service"),
	)
	require.NoError(t, err)
	assert.Equal(t, "forced-id", def.ID)
	assert.Equal(t, "forced name", def.DisplayName)
	require.NotNil(t, def.Address)
	assert.Equal(t, service.AddressGeneric, def.Address.Kind)
	assert.Equal(t, []string{"img2img"}, def.Category)
	assert.Equal(t, "sdxl", def.FamilyID)
	assert.Equal(t, "a test service", def.Description)

	require.NotNil(t, r.Category("img2img"), "referenced categories register as placeholders")
}

func TestAddServiceUpgradesSpecification(t *testing.T) {
	ctx := context.Background()
	r := New()

	cog := testDefinition("cog-svc", "cog on replicate")
	cog.Specification = service.SpecCog
	def, err := r.AddService(ctx, cog, WithAddress("user/model:abc123"))
	require.NoError(t, err)
	assert.Equal(t, service.SpecReplicate, def.Specification,
		"cog behind a replicate address speaks the replicate protocol")

	anyspec := testDefinition("pod-svc", "pod service")
	anyspec.Specification = service.SpecOpenAPI
	def, err = r.AddService(ctx, anyspec, WithAddress("abc123xy"))
	require.NoError(t, err)
	assert.Equal(t, service.SpecRunpod, def.Specification,
		"anything behind a runpod address speaks the runpod job protocol")
}

func TestStorePersistenceAndHydration(t *testing.T) {
	ctx := context.Background()
	backing := memory.New()

	first := New(WithStore(backing))
	_, err := first.AddService(ctx, testDefinition("svc-1", "persisted"))
	require.NoError(t, err)

	// A fresh registry over the same store sees the service immediately.
	second := New(WithStore(backing))
	def := mustGet(t, second, "svc-1")
	assert.Equal(t, "persisted", def.DisplayName)

	// Lazy hydration: drop the in-memory index and look up again.
	third := New(WithStore(backing))
	third.mu.Lock()
	delete(third.services, "svc-1")
	delete(third.names, service.NormalizeName("persisted"))
	third.mu.Unlock()
	def = mustGet(t, third, "persisted")
	assert.Equal(t, "svc-1", def.ID)
}

func TestUpdateService(t *testing.T) {
	ctx := context.Background()
	r := New()
	_, err := r.AddService(ctx, testDefinition("svc-1", "old name"))
	require.NoError(t, err)

	newName := "new name"
	desc := "updated"
	def, err := r.Update(ctx, "svc-1", Updates{DisplayName: &newName, Description: &desc})
	require.NoError(t, err)
	assert.Equal(t, "new name", def.DisplayName)
	assert.Equal(t, "updated", def.Description)

	assert.Equal(t, "svc-1", mustGet(t, r, "new name").ID)
	_, err = r.Get(ctx, "old name")
	assert.True(t, sdkerr.IsKind(err, sdkerr.KindNotFound), "the old name index entry is gone")

	addr := "https://api.socaity.ai/face2face"
	def, err = r.Update(ctx, "svc-1", Updates{Address: &addr})
	require.NoError(t, err)
	require.NotNil(t, def.Address)
	assert.Equal(t, service.AddressSocaity, def.Address.Kind)
	assert.Equal(t, service.SpecSocaity, def.Specification, "address updates re-run the upgrade")
}

func TestUpdateIsCopyOnWrite(t *testing.T) {
	ctx := context.Background()
	r := New()
	_, err := r.AddService(ctx, testDefinition("svc-1", "stable"))
	require.NoError(t, err)
	held := mustGet(t, r, "svc-1")

	updated, err := r.Update(ctx, "svc-1", Updates{Description: ptr("fresh")})
	require.NoError(t, err)
	assert.NotSame(t, held, updated, "readers keep the definition they were handed")
	assert.Empty(t, held.Description)
	assert.Equal(t, "fresh", updated.Description)
	assert.Same(t, updated, mustGet(t, r, "svc-1"), "lookups resolve to the updated copy")
}

func TestUpdateRacesWithReaders(t *testing.T) {
	ctx := context.Background()
	r := New()
	_, err := r.AddService(ctx, testDefinition("svc-1", "busy"))
	require.NoError(t, err)
	held := mustGet(t, r, "svc-1")

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 200; i++ {
			_, err := r.Update(ctx, "svc-1", Updates{Description: ptr("revised")})
			assert.NoError(t, err)
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 200; i++ {
			_ = held.Description
			def, err := r.Get(ctx, "svc-1")
			if assert.NoError(t, err) {
				_ = def.Description
			}
		}
	}()
	wg.Wait()
}

func TestRemoveService(t *testing.T) {
	ctx := context.Background()
	backing := memory.New()
	r := New(WithStore(backing))
	_, err := r.AddService(ctx, testDefinition("svc-1", "doomed"))
	require.NoError(t, err)

	require.NoError(t, r.Remove(ctx, "doomed"))
	_, err = r.Get(ctx, "svc-1")
	assert.True(t, sdkerr.IsKind(err, sdkerr.KindNotFound))
	_, err = backing.Get(ctx, "svc-1")
	assert.Error(t, err, "removal reaches the backing store")

	err = r.Remove(ctx, "svc-1")
	assert.True(t, sdkerr.IsKind(err, sdkerr.KindNotFound))
}

func TestListAndFilter(t *testing.T) {
	ctx := context.Background()
	r := New()
	for _, def := range []*service.Definition{
		testDefinition("a", "service a"),
		testDefinition("b", "service b"),
		testDefinition("c", "service c"),
	} {
		_, err := r.AddService(ctx, def)
		require.NoError(t, err)
	}
	_, err := r.Update(ctx, "b", Updates{Category: []string{"text2img"}})
	require.NoError(t, err)
	_, err = r.Update(ctx, "c", Updates{FamilyID: ptr("flux")})
	require.NoError(t, err)

	assert.Len(t, r.List(), 3)
	byCategory := r.ByCategory("text2img")
	require.Len(t, byCategory, 1)
	assert.Equal(t, "b", byCategory[0].ID)
	byFamily := r.ByFamily("flux")
	require.Len(t, byFamily, 1)
	assert.Equal(t, "c", byFamily[0].ID)
}

func ptr[T any](v T) *T { return &v }

func TestCategoryAndFamilyRegistration(t *testing.T) {
	r := New()

	require.NoError(t, r.AddCategory(&service.Category{ID: "text2img", DisplayName: "Text to Image"}))
	assert.Error(t, r.AddCategory(&service.Category{ID: "text2img"}))
	assert.NotNil(t, r.Category("text2img"))
	assert.NotNil(t, r.Category("Text to Image"), "categories resolve by normalized name")

	require.NoError(t, r.AddFamily(&service.Family{ID: "sdxl", DisplayName: "SDXL"}))
	assert.NotNil(t, r.Family("sdxl"))
	assert.Nil(t, r.Family("unknown"))
}
