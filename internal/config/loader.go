package config

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/BartekS5/fieldmap/internal/schema"
	"github.com/BartekS5/fieldmap/pkg/models"
)

// Stdin is the path that makes a loader read standard input.
const Stdin = "-"

// LoadSample reads a sample API response. root optionally selects a
// sub-document with a gjson path.
func LoadSample(path, root string) (*schema.Sample, error) {
	data, err := readFile(path)
	if err != nil {
		return nil, err
	}
	sample, err := schema.ParseSample(data, root)
	if err != nil {
		return nil, fmt.Errorf("failed to parse sample '%s': %w", path, err)
	}
	return sample, nil
}

// LoadMapping reads a mapping file. Files ending in .yaml or .yml are YAML,
// everything else is JSON.
func LoadMapping(path string) (*models.MappingFile, error) {
	data, err := readFile(path)
	if err != nil {
		return nil, err
	}

	var mf *models.MappingFile
	if isYAML(path) {
		mf = &models.MappingFile{}
		err = yaml.Unmarshal(data, mf)
	} else {
		mf, err = models.LoadMapping(data)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse mapping file '%s': %w", path, err)
	}
	return mf, nil
}

// LoadConnection reads a connection form. Missing fields keep the defaults
// of a new form.
func LoadConnection(path string) (models.ConnectionForm, error) {
	form := models.DefaultConnectionForm()
	data, err := readFile(path)
	if err != nil {
		return form, err
	}

	if isYAML(path) {
		err = yaml.Unmarshal(data, &form)
	} else {
		err = json.Unmarshal(data, &form)
	}
	if err != nil {
		return form, fmt.Errorf("failed to parse connection file '%s': %w", path, err)
	}
	// Only a test run by this process counts.
	form.Tested = false
	return form, nil
}

// LoadProduct reads a data product form.
func LoadProduct(path string) (models.ProductForm, error) {
	var form models.ProductForm
	data, err := readFile(path)
	if err != nil {
		return form, err
	}

	if isYAML(path) {
		err = yaml.Unmarshal(data, &form)
	} else {
		err = json.Unmarshal(data, &form)
	}
	if err != nil {
		return form, fmt.Errorf("failed to parse product file '%s': %w", path, err)
	}
	return form, nil
}

func readFile(path string) ([]byte, error) {
	var (
		data []byte
		err  error
	)
	if path == Stdin {
		data, err = io.ReadAll(os.Stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read '%s': %w", path, err)
	}
	return data, nil
}

func isYAML(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return true
	}
	return false
}
