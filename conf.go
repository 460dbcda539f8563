package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

var conf *Conf

// ServerConf 瓦片服务配置
type ServerConf struct {
	URL        string   `mapstructure:"url"`
	Subdomains []string `mapstructure:"subdomains"`
	MaxZoom    int      `mapstructure:"maxZoom"`
	Format     string   `mapstructure:"format"`
}

type Conf struct {
	App struct {
		Version string `mapstructure:"version"`
		Title   string `mapstructure:"title"`
	} `mapstructure:"app"`
	Output struct {
		File           string `mapstructure:"file"`
		Overwrite      bool   `mapstructure:"overwrite"`
		LogDir         string `mapstructure:"logDir"`
		OutputTerminal bool   `mapstructure:"outputTerminal"`
		Progress       bool   `mapstructure:"progress"`
	} `mapstructure:"output"`
	Task struct {
		Workers   int    `mapstructure:"workers"`
		Timeout   int    `mapstructure:"timeout"`
		UserAgent string `mapstructure:"userAgent"`
	} `mapstructure:"task"`
	Metrics struct {
		Listen string `mapstructure:"listen"`
	} `mapstructure:"metrics"`
	Cache struct {
		Server      string `mapstructure:"server"`
		Name        string `mapstructure:"name"`
		Description string `mapstructure:"description"`
		Min         int    `mapstructure:"min"`
		Max         int    `mapstructure:"max"`
		Geojson     string `mapstructure:"geojson"`
		Bounds      struct {
			SELat float64 `mapstructure:"seLat"`
			SELon float64 `mapstructure:"seLon"`
			NWLat float64 `mapstructure:"nwLat"`
			NWLon float64 `mapstructure:"nwLon"`
		} `mapstructure:"bounds"`
	} `mapstructure:"cache"`
	Servers map[string]ServerConf `mapstructure:"servers"`
}

// InitConf 初始化配置
func InitConf(cfgFile string) {
	c, err := LoadConf(cfgFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", err)
		os.Exit(1)
	}
	if serverName != "" {
		c.Cache.Server = serverName
	}
	conf = c
}

// LoadConf reads the TOML config file, with TILECACHE_* environment overrides.
func LoadConf(cfgFile string) (*Conf, error) {
	if cfgFile == "" {
		cfgFile = "conf.toml"
	}
	if _, err := os.Stat(cfgFile); os.IsNotExist(err) {
		return nil, fmt.Errorf("config file(%s) not exist", cfgFile)
	}
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	v := viper.New()
	v.SetConfigType("toml")
	v.SetConfigFile(cfgFile)
	v.SetEnvPrefix("TILECACHE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv() // read in environment variables that match

	// 设置默认值
	v.SetDefault("app.version", "v 0.1.0")
	v.SetDefault("app.title", "Tile Cache Builder")
	v.SetDefault("output.file", "output/cache.mbtiles")
	v.SetDefault("output.outputTerminal", true)
	v.SetDefault("output.progress", true)
	v.SetDefault("task.workers", 1)
	v.SetDefault("task.timeout", DefaultTimeout.Milliseconds())
	v.SetDefault("task.userAgent", "tilecache/0.1")
	v.SetDefault("cache.server", "openstreetmap")
	v.SetDefault("cache.min", ZoomMin)
	v.SetDefault("cache.max", ZoomMax)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config file(%s) error, details: %w", v.ConfigFileUsed(), err)
	}

	var c Conf
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("parse config file(%s) error, details: %w", v.ConfigFileUsed(), err)
	}
	return &c, nil
}

// Registry returns the built-in servers overlaid with the configured ones.
func (c *Conf) Registry() Registry {
	r := DefaultRegistry()
	for name, s := range c.Servers {
		name = strings.ToLower(name)
		r[name] = TileServer{
			Name:       name,
			URL:        s.URL,
			Subdomains: s.Subdomains,
			MaxZoom:    s.MaxZoom,
			Format:     s.Format,
		}
	}
	return r
}

// BoundingBox returns the configured extent, from the GeoJSON file when one is set.
func (c *Conf) BoundingBox() (BoundingBox, error) {
	if c.Cache.Geojson != "" {
		collection, err := loadCollection(c.Cache.Geojson)
		if err != nil {
			return BoundingBox{}, err
		}
		if len(collection) == 0 {
			return BoundingBox{}, fmt.Errorf("%w: %s has no features", ErrInvalidBounds, c.Cache.Geojson)
		}
		return BoundingBoxFromBound(collection.Bound()), nil
	}
	b := c.Cache.Bounds
	return BoundingBox{
		SouthEast: GeoPoint{Lat: b.SELat, Lon: b.SELon},
		NorthWest: GeoPoint{Lat: b.NWLat, Lon: b.NWLon},
	}, nil
}
