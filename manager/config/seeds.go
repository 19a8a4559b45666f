package config

import (
	"dataset_manager/manager/query"
	"dataset_manager/manager/schema"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// SeedConfig is a yaml file of dataset definitions applied at startup, plus
// optional pagination overrides.
type SeedConfig struct {
	Pagination *query.PageConfig `yaml:"pagination,omitempty"`
	Datasets   []schema.Dataset  `yaml:"datasets"`
}

func ParseSeedConfig(data []byte) (*SeedConfig, error) {
	var config SeedConfig
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("error parsing dataset seed config: %w", err)
	}

	for i, dataset := range config.Datasets {
		if dataset.IdType == "" {
			config.Datasets[i].IdType = schema.SerialId
		}
		if err := schema.ValidateDataset(config.Datasets[i]); err != nil {
			return nil, fmt.Errorf("invalid dataset seed %v: %w", dataset.Name, err)
		}
	}

	if config.Pagination != nil {
		pages, err := parsePagination(data)
		if err != nil {
			return nil, err
		}
		config.Pagination = &pages
	}

	return &config, nil
}

// parsePagination decodes the pagination block over the default settings, so
// keys left out of the file keep their defaults.
func parsePagination(data []byte) (query.PageConfig, error) {
	overrides := struct {
		Pagination query.PageConfig `yaml:"pagination"`
	}{Pagination: query.DefaultPageConfig()}

	if err := yaml.Unmarshal(data, &overrides); err != nil {
		return query.PageConfig{}, fmt.Errorf("error parsing dataset seed config: %w", err)
	}

	pages := overrides.Pagination
	if pages.ItemsPerPage <= 0 {
		return query.PageConfig{}, fmt.Errorf("pagination itemsPerPage must be positive, got %d", pages.ItemsPerPage)
	}
	if pages.MidPoint < 1 {
		return query.PageConfig{}, fmt.Errorf("pagination midPoint must be at least 1, got %d", pages.MidPoint)
	}
	if pages.FirstPage < 1 {
		return query.PageConfig{}, fmt.Errorf("pagination firstPage must be at least 1, got %d", pages.FirstPage)
	}
	return pages, nil
}

func LoadSeedConfig(path string) (*SeedConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading dataset seed config: %w", err)
	}
	return ParseSeedConfig(data)
}
