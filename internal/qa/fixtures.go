package qa

import (
	"errors"
	"fmt"
	"os"
	"path"
	"strings"

	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"
)

// ManifestFile is the fixture manifest looked up in the fixtures directory.
const ManifestFile = "manifest.yaml"

// Manifest describes the synthetic meeting the harness drives through the
// pipeline.
type Manifest struct {
	Title        string   `yaml:"title"`
	Transcript   string   `yaml:"transcript"`
	Audio        string   `yaml:"audio"`
	Participants []string `yaml:"participants"`
}

// Fixtures are the loaded synthetic inputs. Missing files leave the
// corresponding field empty; the checks that need them are skipped.
type Fixtures struct {
	Dir         string
	Manifest    Manifest
	Transcript  string
	Audio       []byte
	AudioFormat string
}

func defaultManifest() Manifest {
	return Manifest{
		Title:      "QA synthetic meeting",
		Transcript: "transcript.txt",
	}
}

// LoadFixtures reads the manifest and the files it names from dir on fs.
// A missing manifest falls back to transcript.txt; a malformed one is an error.
func LoadFixtures(fs afero.Fs, dir string) (*Fixtures, error) {
	f := &Fixtures{Dir: dir, Manifest: defaultManifest()}

	raw, err := afero.ReadFile(fs, path.Join(dir, ManifestFile))
	switch {
	case err == nil:
		if err := yaml.Unmarshal(raw, &f.Manifest); err != nil {
			return nil, fmt.Errorf("parse %s: %w", ManifestFile, err)
		}
	case errors.Is(err, os.ErrNotExist):
	default:
		return nil, fmt.Errorf("read %s: %w", ManifestFile, err)
	}
	if f.Manifest.Title == "" {
		f.Manifest.Title = defaultManifest().Title
	}

	if name := f.Manifest.Transcript; name != "" {
		text, err := readOptional(fs, path.Join(dir, name))
		if err != nil {
			return nil, err
		}
		f.Transcript = strings.TrimSpace(string(text))
	}
	if name := f.Manifest.Audio; name != "" {
		audio, err := readOptional(fs, path.Join(dir, name))
		if err != nil {
			return nil, err
		}
		f.Audio = audio
		f.AudioFormat = strings.TrimPrefix(strings.ToLower(path.Ext(name)), ".")
	}
	return f, nil
}

func readOptional(fs afero.Fs, name string) ([]byte, error) {
	data, err := afero.ReadFile(fs, name)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read fixture %s: %w", name, err)
	}
	return data, nil
}
