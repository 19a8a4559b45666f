package config

import (
	"dataset_manager/manager/query"
	"dataset_manager/manager/schema"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const seedYaml = `
pagination:
  itemsPerPage: 50
  midPoint: 3
  firstPage: 1
datasets:
  - name: people
    org: acme
    versioned: true
    fields:
      - name: firstName
        datatype: varchar
        notNull: "Yes"
      - name: age
        datatype: INTEGER
    uniqueTogether: [firstName, age]
  - name: tags
    idType: VARCHAR
    fields:
      - name: label
        datatype: VARCHAR
        unique: "Yes"
`

func TestLoadSeedConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "seeds.yaml")
	require.NoError(t, os.WriteFile(path, []byte(seedYaml), 0644))

	config, err := LoadSeedConfig(path)
	require.NoError(t, err)

	require.NotNil(t, config.Pagination)
	assert.Equal(t, 50, config.Pagination.ItemsPerPage)
	assert.Equal(t, 3, config.Pagination.MidPoint)

	require.Len(t, config.Datasets, 2)

	people := config.Datasets[0]
	assert.Equal(t, "people", people.Name)
	assert.Equal(t, schema.SerialId, people.IdType)
	assert.True(t, people.Versioned)
	assert.Equal(t, "acme", people.Org)
	assert.Equal(t, schema.Varchar, people.Fields[0].Datatype)
	assert.True(t, people.Fields[0].IsNotNull())
	assert.Equal(t, []string{"firstName", "age"}, []string(people.UniqueTogether))

	tags := config.Datasets[1]
	assert.Equal(t, schema.VarcharId, tags.IdType)
	assert.True(t, tags.Fields[0].IsUnique())
}

func TestParsePartialPagination(t *testing.T) {
	config, err := ParseSeedConfig([]byte("pagination:\n  itemsPerPage: 2\ndatasets: []\n"))
	require.NoError(t, err)

	require.NotNil(t, config.Pagination)
	assert.Equal(t, query.PageConfig{ItemsPerPage: 2, MidPoint: 5, FirstPage: 1}, *config.Pagination)
	assert.Equal(t, 0, config.Pagination.Offset(1))
	assert.Equal(t, 2, config.Pagination.Offset(2))

	config, err = ParseSeedConfig([]byte("datasets: []\n"))
	require.NoError(t, err)
	assert.Nil(t, config.Pagination)
}

func TestParseSeedConfigErrors(t *testing.T) {
	_, err := ParseSeedConfig([]byte("datasets:\n  - name: Bad Name\n"))
	assert.ErrorIs(t, err, schema.ErrInvalidIdentifier)

	_, err = ParseSeedConfig([]byte("datasets:\n  - name: foo\n    fields:\n      - name: bar\n        datatype: BLOB\n"))
	assert.ErrorContains(t, err, "invalid datatype")

	_, err = ParseSeedConfig([]byte("pagination:\n  itemsPerPage: 0\ndatasets: []\n"))
	assert.Error(t, err)

	_, err = ParseSeedConfig([]byte("pagination:\n  firstPage: 0\ndatasets: []\n"))
	assert.Error(t, err)

	_, err = ParseSeedConfig([]byte("pagination:\n  midPoint: 0\ndatasets: []\n"))
	assert.Error(t, err)

	_, err = LoadSeedConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
