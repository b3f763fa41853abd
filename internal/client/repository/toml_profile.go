package repository

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/BurntSushi/toml"

	client "github.com/ramonsune/custodia-360-sub010/internal/client/domain"
)

const (
	permRepository = 0600
)

// TOMLProfileRepository keeps profiles in a TOML file and reloads it
// whenever the file changes on disk.
type TOMLProfileRepository struct {
	FilePath string

	data       schema
	modifiedAt time.Time
}

func (r *TOMLProfileRepository) Get(name string) (client.Profile, error) {
	if err := r.refresh(); err != nil {
		return client.Profile{}, err
	}
	repr, ok := r.data.Profiles[name]
	if !ok {
		return client.Profile{}, fmt.Errorf("%w: %s", client.ErrProfileNotExist, name)
	}
	return repr.toDomain(name), nil
}

func (r *TOMLProfileRepository) List() ([]client.Profile, error) {
	if err := r.refresh(); err != nil {
		return nil, err
	}
	out := make([]client.Profile, 0, len(r.data.Profiles))
	for name, repr := range r.data.Profiles {
		out = append(out, repr.toDomain(name))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (r *TOMLProfileRepository) Set(name string, p client.Profile) error {
	if err := r.refresh(); err != nil {
		return err
	}
	if _, ok := r.data.Profiles[name]; !ok {
		r.data.Profiles[name] = &profile{}
	}
	r.data.Profiles[name].fromDomain(p)
	return r.save()
}

func (r *TOMLProfileRepository) Delete(name string) error {
	if err := r.refresh(); err != nil {
		return err
	}
	if _, ok := r.data.Profiles[name]; !ok {
		return fmt.Errorf("%w: %s", client.ErrProfileNotExist, name)
	}
	delete(r.data.Profiles, name)
	return r.save()
}

type profile struct {
	ServerURL  string `toml:"server"`
	CronHeader string `toml:"cronHeader,omitempty"`
	Secret     string `toml:"secret,omitempty"`
}

func (p *profile) toDomain(name string) client.Profile {
	return client.Profile{
		Name:       name,
		ServerURL:  p.ServerURL,
		CronHeader: p.CronHeader,
		Secret:     p.Secret,
	}
}

func (p *profile) fromDomain(pr client.Profile) {
	p.ServerURL = pr.ServerURL
	p.CronHeader = pr.CronHeader
	p.Secret = pr.Secret
}

type schema struct {
	Profiles map[string]*profile `toml:"profiles"`
}

func (r *TOMLProfileRepository) refresh() error {
	modified, err := r.fileModified()
	if err != nil {
		return err
	}
	if modified {
		if err := r.load(); err != nil {
			return err
		}
	}
	if r.data.Profiles == nil {
		r.data.Profiles = map[string]*profile{}
	}
	return nil
}

// fileModified treats a missing file as an empty, unchanged repository.
func (r *TOMLProfileRepository) fileModified() (bool, error) {
	info, err := os.Stat(r.FilePath)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to read file timestamp: %w", err)
	}
	modTime := info.ModTime()
	mod := !r.modifiedAt.Equal(modTime)
	if mod {
		r.modifiedAt = modTime
	}
	return mod, nil
}

func (r *TOMLProfileRepository) load() error {
	r.data = schema{}
	_, err := toml.DecodeFile(r.FilePath, &r.data)
	if err != nil {
		return fmt.Errorf("failed to load repository: %w", err)
	}
	return nil
}

func (r *TOMLProfileRepository) save() error {
	if err := os.MkdirAll(filepath.Dir(r.FilePath), 0700); err != nil {
		return fmt.Errorf("failed to save repository: %w", err)
	}
	file, err := os.OpenFile(r.FilePath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, permRepository)
	if err != nil {
		return fmt.Errorf("failed to save repository: %w", err)
	}
	return writeSchema(file, r.data)
}

// writeSchema encodes data into w and closes it. A close error counts as a
// failed save.
func writeSchema(w io.WriteCloser, data schema) error {
	enc := toml.NewEncoder(w)
	enc.Indent = ""
	if err := enc.Encode(data); err != nil {
		w.Close()
		return fmt.Errorf("failed to save repository: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("failed to save repository: %w", err)
	}
	return nil
}
