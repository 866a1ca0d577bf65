package hooks

import (
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"
)

// Fat archives bundle copies of classes other archives provide; loading them
// last lets the slimmer archives win.
var fatJarPattern = regexp.MustCompile(`^(batik|jython|jython-standalone|jruby)(-[0-9].*)?\.jar$`)

func isFatJar(name string) bool {
	return fatJarPattern.MatchString(filepath.Base(name))
}

// SortFatJarsLast moves fat archives to the end, keeping the relative order
// of everything else.
func SortFatJarsLast(names []string) {
	sort.SliceStable(names, func(i, j int) bool {
		return !isFatJar(names[i]) && isFatJar(names[j])
	})
}

// DiscoverPluginJars lists each existing directory followed by the .jar
// files beneath it, in directory order. Directories are walked
// concurrently; missing directories are skipped.
func DiscoverPluginJars(dirs []string) ([]string, error) {
	results := make([][]string, len(dirs))
	var g errgroup.Group
	g.SetLimit(4)
	for i, dir := range dirs {
		g.Go(func() error {
			found, err := walkPluginDir(dir)
			results[i] = found
			return err
		})
	}
	err := g.Wait()

	var out []string
	for _, r := range results {
		out = append(out, r...)
	}
	return out, err
}

func walkPluginDir(dir string) ([]string, error) {
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		return nil, nil
	}
	out := []string{dir}
	var jars []string
	err = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && strings.HasSuffix(d.Name(), ".jar") {
			jars = append(jars, path)
		}
		return nil
	})
	SortFatJarsLast(jars)
	return append(out, jars...), err
}
