// Package dataset reads embedded images and feeds them to training in batches.
//
// Datasets are directories in the layout below:
//
//	ROOT/
//	  glioma/
//	    image-0001.json
//	    ...
//	  meningioma/
//	    ...
//
// Each directory under the root is a class, and each "*.json" file in it is a sample:
// a JSON array of numbers, the embedding of an image.
// Classes are sorted by name and numbered from 0.
package dataset

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"slices"
	"strings"
)

var (
	ErrEmptyDataset = errors.New("dataset is empty")
	ErrBrokenSample = errors.New("broken sample")
)

type Sample struct {
	Features []float64
	Label    int
}

type Dataset struct {
	Classes []string
	Samples []Sample
}

// Features returns the number of features of samples.
func (d *Dataset) Features() int {
	if len(d.Samples) == 0 {
		return 0
	}
	return len(d.Samples[0].Features)
}

// Load reads a dataset from root of fsys.
//
// When classes is not empty, it is used as class names in the order,
// and directories not in classes are ignored.
// Otherwise, all directories under root are classes.
func Load(fsys fs.FS, root string, classes ...string) (*Dataset, error) {
	if len(classes) == 0 {
		entries, err := fs.ReadDir(fsys, root)
		if err != nil {
			return nil, err
		}
		for _, e := range entries {
			if e.IsDir() && !strings.HasPrefix(e.Name(), ".") {
				classes = append(classes, e.Name())
			}
		}
		slices.Sort(classes)
	}

	ds := &Dataset{Classes: classes, Samples: []Sample{}}
	features := -1
	for label, class := range classes {
		dir := path.Join(root, class)
		entries, err := fs.ReadDir(fsys, dir)
		if err != nil {
			return nil, err
		}
		for _, e := range entries {
			if e.IsDir() || path.Ext(e.Name()) != ".json" {
				continue
			}
			name := path.Join(dir, e.Name())
			content, err := fs.ReadFile(fsys, name)
			if err != nil {
				return nil, err
			}
			var vec []float64
			if err := json.Unmarshal(content, &vec); err != nil {
				return nil, fmt.Errorf("%w: %s: %w", ErrBrokenSample, name, err)
			}
			if features < 0 {
				features = len(vec)
			}
			if len(vec) == 0 || len(vec) != features {
				return nil, fmt.Errorf(
					"%w: %s: %d features, but others have %d", ErrBrokenSample, name, len(vec), features,
				)
			}
			ds.Samples = append(ds.Samples, Sample{Features: vec, Label: label})
		}
	}

	if len(ds.Samples) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrEmptyDataset, root)
	}
	return ds, nil
}
