package app

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"taskhub/api/internal/store"
)

type categoryFile struct {
	Categories []struct {
		Name  string `yaml:"name"`
		Color string `yaml:"color"`
		Icon  string `yaml:"icon"`
	} `yaml:"categories"`
}

var builtinCategories = []store.DefaultCategory{
	{Name: "仕事", Color: "#4a90e2", Icon: "briefcase"},
	{Name: "プライベート", Color: "#7ed321", Icon: "home"},
}

// loadDefaultCategories reads the category templates from path. A missing
// file falls back to the built-in list; a malformed one is an error.
func loadDefaultCategories(path string) ([]store.DefaultCategory, error) {
	items := builtinCategories
	if strings.TrimSpace(path) != "" {
		raw, err := os.ReadFile(path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("read default categories: %w", err)
		default:
			parsed, err := parseDefaultCategories(raw)
			if err != nil {
				return nil, err
			}
			items = parsed
		}
	}

	seeds := make([]store.DefaultCategory, 0, len(items))
	for i, item := range items {
		item.ID = fmt.Sprintf("dct_%02d", i+1)
		item.Index = i + 1
		seeds = append(seeds, item)
	}
	return seeds, nil
}

func parseDefaultCategories(raw []byte) ([]store.DefaultCategory, error) {
	var file categoryFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("parse default categories: %w", err)
	}
	items := make([]store.DefaultCategory, 0, len(file.Categories))
	for i, c := range file.Categories {
		if strings.TrimSpace(c.Name) == "" {
			return nil, fmt.Errorf("parse default categories: entry %d has no name", i+1)
		}
		items = append(items, store.DefaultCategory{Name: c.Name, Color: c.Color, Icon: c.Icon})
	}
	return items, nil
}
