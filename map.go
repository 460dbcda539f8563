package main

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/paulmach/orb/maptile"
)

// TileServer 瓦片服务
//
// URL is a template with the positional slots {0} subdomain, {1} zoom, {2} x, {3} y and
// {4} image extension. The aliases {s}, {z}, {x}, {y} and {ext} are accepted too.
type TileServer struct {
	Name       string
	URL        string
	Subdomains []string
	MaxZoom    int
	Format     string
}

// Validate checks the descriptor can address tiles.
func (m TileServer) Validate() error {
	if m.URL == "" {
		return fmt.Errorf("tile server %q: empty url template", m.Name)
	}
	if len(m.Subdomains) == 0 {
		return fmt.Errorf("tile server %q: no subdomains", m.Name)
	}
	if m.Format == "" {
		return fmt.Errorf("tile server %q: empty image format", m.Name)
	}
	for _, slot := range [][]string{{"{1}", "{z}"}, {"{2}", "{x}"}, {"{3}", "{y}"}} {
		if !strings.Contains(m.URL, slot[0]) && !strings.Contains(m.URL, slot[1]) {
			return fmt.Errorf("tile server %q: url template %q lacks %s", m.Name, m.URL, slot[1])
		}
	}
	return nil
}

// TileURL 获取瓦片URL
func (m TileServer) TileURL(subdomain string, t maptile.Tile) string {
	z := strconv.Itoa(int(t.Z))
	x := strconv.Itoa(int(t.X))
	y := strconv.Itoa(int(t.Y))
	r := strings.NewReplacer(
		"{0}", subdomain, "{s}", subdomain,
		"{1}", z, "{z}", z,
		"{2}", x, "{x}", x,
		"{3}", y, "{y}", y,
		"{4}", m.Format, "{ext}", m.Format,
	)
	return r.Replace(m.URL)
}

// Registry maps names to known tile servers.
type Registry map[string]TileServer

// DefaultRegistry returns the built-in providers.
func DefaultRegistry() Registry {
	return Registry{
		"openstreetmap": {
			Name:       "openstreetmap",
			URL:        "http://{0}.tile.openstreetmap.org/{1}/{2}/{3}.{4}",
			Subdomains: []string{"a", "b", "c"},
			MaxZoom:    19,
			Format:     PNG,
		},
		"opencyclemap": {
			Name:       "opencyclemap",
			URL:        "http://{0}.tile.opencyclemap.org/cycle/{1}/{2}/{3}.{4}",
			Subdomains: []string{"a", "b", "c"},
			MaxZoom:    19,
			Format:     PNG,
		},
		"mapquestosm": {
			Name:       "mapquestosm",
			URL:        "http://otile{0}.mqcdn.com/tiles/1.0.0/map/{1}/{2}/{3}.{4}",
			Subdomains: []string{"1", "2", "3", "4"},
			MaxZoom:    19,
			Format:     JPG,
		},
	}
}

// Lookup returns the named server.
func (r Registry) Lookup(name string) (TileServer, error) {
	s, ok := r[strings.ToLower(name)]
	if !ok {
		return TileServer{}, fmt.Errorf("%w: %q (known: %s)", ErrUnknownServer, name, strings.Join(r.Names(), ", "))
	}
	return s, nil
}

// Names returns the sorted server names.
func (r Registry) Names() []string {
	names := make([]string, 0, len(r))
	for name := range r {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
