// Package archive writes committed units out as a loadable archive and
// reads such archives back as a unit source.
//
// An archive is a zip file holding a CBOR MANIFEST and one entry per unit
// under units/. Each unit entry is a zstd-compressed CBOR record carrying
// the unit's canonical source. An archive written from a patched boundary
// is pre-patched: loading it into a fresh boundary and patching that
// boundary commits its units as they are.
package archive

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"slices"
	"strings"

	"github.com/fxamacker/cbor/v2"
	"github.com/klauspost/compress/zip"
	"github.com/klauspost/compress/zstd"
	"github.com/tliron/commonlog"

	"github.com/chazu/retrofit/hooks"
	"github.com/chazu/retrofit/unit"
)

var log = commonlog.GetLogger("retrofit.archive")

const (
	// ManifestName is the zip entry holding the manifest.
	ManifestName = "MANIFEST"
	// Version is the archive format version written by Write.
	Version = 1

	unitDir = "units/"
	unitExt = ".cbor.zst"
)

var (
	ErrNotArchive = errors.New("archive: not a unit archive")
	ErrDigest     = errors.New("archive: digest mismatch")
)

var encMode cbor.EncMode

func init() {
	var err error
	encMode, err = cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic("archive: failed to create CBOR enc mode: " + err.Error())
	}
}

// Manifest describes the content of an archive.
type Manifest struct {
	Version int        `cbor:"version"`
	Entry   string     `cbor:"entry,omitempty"`
	Units   []UnitInfo `cbor:"units"`
	Config  []byte     `cbor:"config,omitempty"`
}

// UnitInfo describes one archived unit.
type UnitInfo struct {
	Name    string `cbor:"name"`
	Super   string `cbor:"super,omitempty"`
	Origin  string `cbor:"origin,omitempty"`
	Digest  string `cbor:"digest"`
	Patched bool   `cbor:"patched"`
}

// Patched returns the names of the units that were committed from a patch
// run, as opposed to merged unmodified.
func (m *Manifest) Patched() []string {
	var out []string
	for _, u := range m.Units {
		if u.Patched {
			out = append(out, u.Name)
		}
	}
	return out
}

type record struct {
	Name   string `cbor:"name"`
	Origin string `cbor:"origin,omitempty"`
	Source string `cbor:"source"`
}

func entryName(class string) string { return unitDir + class + unitExt }

func digest(src string) string {
	sum := sha256.Sum256([]byte(src))
	return hex.EncodeToString(sum[:])
}

// ---------------------------------------------------------------------------
// Write
// ---------------------------------------------------------------------------

// Options controls Write.
type Options struct {
	// Entry records the class carrying the hook slot.
	Entry string
	// Full merges every other class of Pool into the archive, unmodified.
	Full bool
	Pool *unit.Pool
	// Config, when set, is stored so a loader of the archive can restore
	// the hook configuration.
	Config *hooks.Config
}

// Write writes lds, and with opts.Full the untouched remainder of
// opts.Pool, as an archive to w.
func Write(w io.Writer, lds []*unit.Loadable, opts Options) error {
	type item struct {
		info UnitInfo
		rec  record
	}
	var items []item
	seen := make(map[string]bool, len(lds))
	for _, ld := range lds {
		seen[ld.Name] = true
		items = append(items, item{
			info: UnitInfo{Name: ld.Name, Super: ld.Super, Origin: ld.Origin, Digest: ld.Digest, Patched: true},
			rec:  record{Name: ld.Name, Origin: ld.Origin, Source: ld.Source},
		})
	}

	if opts.Full {
		if opts.Pool == nil {
			return errors.New("archive: full archive needs a pool")
		}
		names, err := opts.Pool.Classes()
		if err != nil {
			return err
		}
		for _, name := range names {
			if seen[name] {
				continue
			}
			text, origin, err := opts.Pool.Text(name)
			if err != nil {
				return err
			}
			decl, err := opts.Pool.Decl(name)
			if err != nil {
				return err
			}
			items = append(items, item{
				info: UnitInfo{Name: name, Super: decl.Super, Origin: origin, Digest: digest(text)},
				rec:  record{Name: name, Origin: origin, Source: text},
			})
		}
	}
	slices.SortFunc(items, func(a, b item) int { return strings.Compare(a.info.Name, b.info.Name) })

	m := Manifest{Version: Version, Entry: opts.Entry}
	if opts.Config != nil {
		cfg, err := hooks.MarshalConfig(opts.Config)
		if err != nil {
			return fmt.Errorf("archive: encoding config: %w", err)
		}
		m.Config = cfg
	}

	enc, err := zstd.NewWriter(nil)
	if err != nil {
		return err
	}
	defer enc.Close()

	zw := zip.NewWriter(w)
	for _, it := range items {
		data, err := encMode.Marshal(it.rec)
		if err != nil {
			return fmt.Errorf("archive: encoding %s: %w", it.info.Name, err)
		}
		fw, err := zw.CreateHeader(&zip.FileHeader{Name: entryName(it.info.Name), Method: zip.Store})
		if err != nil {
			return err
		}
		if _, err := fw.Write(enc.EncodeAll(data, nil)); err != nil {
			return err
		}
		m.Units = append(m.Units, it.info)
	}

	data, err := encMode.Marshal(m)
	if err != nil {
		return fmt.Errorf("archive: encoding manifest: %w", err)
	}
	fw, err := zw.CreateHeader(&zip.FileHeader{Name: ManifestName, Method: zip.Deflate})
	if err != nil {
		return err
	}
	if _, err := fw.Write(data); err != nil {
		return err
	}
	if err := zw.Close(); err != nil {
		return err
	}
	log.Infof("wrote %d units (%d patched)", len(m.Units), len(lds))
	return nil
}

// ---------------------------------------------------------------------------
// Read
// ---------------------------------------------------------------------------

// Archive is an opened archive. It implements unit.Source.
type Archive struct {
	name     string
	manifest Manifest
	files    map[string]*zip.File
	dec      *zstd.Decoder
	closer   io.Closer
}

var _ unit.Source = (*Archive)(nil)

// Open opens the archive at path.
func Open(path string) (*Archive, error) {
	rc, err := zip.OpenReader(path)
	if err != nil {
		return nil, err
	}
	a, err := newArchive(path, &rc.Reader)
	if err != nil {
		rc.Close()
		return nil, err
	}
	a.closer = rc
	return a, nil
}

// NewReader reads an archive of size bytes from r. name identifies it in
// diagnostics.
func NewReader(r io.ReaderAt, size int64, name string) (*Archive, error) {
	zr, err := zip.NewReader(r, size)
	if err != nil {
		return nil, err
	}
	return newArchive(name, zr)
}

func newArchive(name string, zr *zip.Reader) (*Archive, error) {
	a := &Archive{name: name, files: make(map[string]*zip.File)}
	var mf *zip.File
	for _, f := range zr.File {
		if f.Name == ManifestName {
			mf = f
			continue
		}
		a.files[f.Name] = f
	}
	if mf == nil {
		return nil, fmt.Errorf("%w: %s has no %s", ErrNotArchive, name, ManifestName)
	}
	data, err := readFile(mf)
	if err != nil {
		return nil, err
	}
	if err := cbor.Unmarshal(data, &a.manifest); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrNotArchive, name, err)
	}
	if a.manifest.Version != Version {
		return nil, fmt.Errorf("%w: %s has format version %d", ErrNotArchive, name, a.manifest.Version)
	}
	if a.dec, err = zstd.NewReader(nil); err != nil {
		return nil, err
	}
	return a, nil
}

func readFile(f *zip.File) ([]byte, error) {
	r, err := f.Open()
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return io.ReadAll(r)
}

// Name returns the archive's path or name.
func (a *Archive) Name() string { return a.name }

// Manifest returns the archive's manifest.
func (a *Archive) Manifest() *Manifest { return &a.manifest }

// Config returns the stored hook configuration, or nil.
func (a *Archive) Config() (*hooks.Config, error) {
	if len(a.manifest.Config) == 0 {
		return nil, nil
	}
	return hooks.UnmarshalConfig(a.manifest.Config)
}

// Classes lists the archived units, sorted.
func (a *Archive) Classes() ([]string, error) {
	out := make([]string, 0, len(a.manifest.Units))
	for _, u := range a.manifest.Units {
		out = append(out, u.Name)
	}
	slices.Sort(out)
	return out, nil
}

// Read returns the source of an archived unit, checking it against the
// manifest digest.
func (a *Archive) Read(class string) (string, error) {
	info, ok := a.info(class)
	f := a.files[entryName(class)]
	if !ok || f == nil {
		return "", fmt.Errorf("%w: %s in %s", unit.ErrNotFound, class, a.name)
	}
	raw, err := readFile(f)
	if err != nil {
		return "", err
	}
	data, err := a.dec.DecodeAll(raw, nil)
	if err != nil {
		return "", fmt.Errorf("archive: %s in %s: %w", class, a.name, err)
	}
	var rec record
	if err := cbor.Unmarshal(data, &rec); err != nil {
		return "", fmt.Errorf("archive: %s in %s: %w", class, a.name, err)
	}
	if digest(rec.Source) != info.Digest {
		return "", fmt.Errorf("%w: %s in %s", ErrDigest, class, a.name)
	}
	return rec.Source, nil
}

func (a *Archive) info(class string) (UnitInfo, bool) {
	for _, u := range a.manifest.Units {
		if u.Name == class {
			return u, true
		}
	}
	return UnitInfo{}, false
}

// Close releases the archive.
func (a *Archive) Close() error {
	a.dec.Close()
	if a.closer != nil {
		return a.closer.Close()
	}
	return nil
}
