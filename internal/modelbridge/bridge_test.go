package modelbridge

import (
	"errors"
	"sync"
	"testing"

	"github.com/sleepstars/deepbridge/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func defaultMapping() []config.ModelMapping {
	return config.Default().Models.Mapping
}

func TestPassThrough_Resolve(t *testing.T) {
	var r Resolver = PassThrough{}

	for _, model := range []string{"deepseek-chat", "deepseek-reasoner", "gpt-4", ""} {
		got, err := r.Resolve(model)
		assert.NoError(t, err)
		assert.Equal(t, model, got)
	}
	assert.Equal(t, config.PolicyPassthrough, r.Policy())
}

func TestMappingTable_Resolve(t *testing.T) {
	table := NewMappingTable(defaultMapping())

	got, err := table.Resolve("deepseek-chat")
	require.NoError(t, err)
	assert.Equal(t, "DeepSeek-V3", got)

	got, err = table.Resolve("deepseek-reasoner")
	require.NoError(t, err)
	assert.Equal(t, "DeepSeek-R1", got)

	assert.Equal(t, config.PolicyMapping, table.Policy())
}

func TestMappingTable_UnknownModel(t *testing.T) {
	table := NewMappingTable(defaultMapping())

	_, err := table.Resolve("gpt-4")
	require.Error(t, err)

	var notFound *ModelNotFoundError
	require.True(t, errors.As(err, &notFound))
	assert.Equal(t, "gpt-4", notFound.Model)
	assert.Equal(t, []string{"deepseek-reasoner", "deepseek-chat"}, notFound.Available)
	assert.Equal(t, "Model 'gpt-4' not found. Available models: deepseek-reasoner, deepseek-chat", err.Error())
}

func TestMappingTable_IsCaseSensitive(t *testing.T) {
	table := NewMappingTable(defaultMapping())

	_, err := table.Resolve("DeepSeek-Chat")
	assert.Error(t, err)
}

func TestMappingTable_ModelsIsACopy(t *testing.T) {
	table := NewMappingTable(defaultMapping())

	models := table.Models()
	models[0] = "mutated"
	assert.Equal(t, []string{"deepseek-reasoner", "deepseek-chat"}, table.Models())
}

func TestMappingTable_DuplicateKeepsFirstPosition(t *testing.T) {
	table := NewMappingTable([]config.ModelMapping{
		{Model: "a", Upstream: "A1"},
		{Model: "b", Upstream: "B"},
		{Model: "a", Upstream: "A2"},
	})

	assert.Equal(t, []string{"a", "b"}, table.Models())
	got, err := table.Resolve("a")
	require.NoError(t, err)
	assert.Equal(t, "A2", got)
}

func TestMappingTable_ConcurrentResolve(t *testing.T) {
	table := NewMappingTable(defaultMapping())

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if i%2 == 0 {
				got, err := table.Resolve("deepseek-chat")
				assert.NoError(t, err)
				assert.Equal(t, "DeepSeek-V3", got)
				return
			}
			_, err := table.Resolve("unknown")
			assert.Error(t, err)
		}(i)
	}
	wg.Wait()
}

func TestNewResolver(t *testing.T) {
	r, err := NewResolver(config.ModelsConfig{Policy: config.PolicyPassthrough})
	require.NoError(t, err)
	assert.IsType(t, PassThrough{}, r)

	r, err = NewResolver(config.ModelsConfig{Policy: config.PolicyMapping, Mapping: defaultMapping()})
	require.NoError(t, err)
	assert.IsType(t, &MappingTable{}, r)

	_, err = NewResolver(config.ModelsConfig{Policy: config.PolicyMapping})
	assert.Error(t, err)

	_, err = NewResolver(config.ModelsConfig{Policy: "strict"})
	assert.Error(t, err)
}
