package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/paulmach/orb/maptile"
	"github.com/teris-io/shortid"
	"golang.org/x/sync/errgroup"
	pb "gopkg.in/cheggaaa/pb.v1"
)

// TileFetcher downloads a single tile.
type TileFetcher interface {
	FetchTile(ctx context.Context, server TileServer, subdomain string, t maptile.Tile) ([]byte, error)
}

// TileWriter persists fetched tiles. Build owns it until it returns and always leaves
// it closed.
type TileWriter interface {
	Init(meta Metadata) error
	PutTile(t maptile.Tile, data []byte) error
	Close() error
	Abort() error
}

// TaskOptions tunes a build.
type TaskOptions struct {
	Name        string
	Description string
	// Workers is the number of tiles fetched at once. Tiles are still written in
	// enumeration order.
	Workers  int
	Progress bool
	Fetcher  TileFetcher
	Metrics  *Metrics
}

// Task 下载任务
type Task struct {
	ID          string
	Name        string
	Description string
	Server      TileServer
	Layers      []Layer
	Total       int64
	Current     int64
	fetcher     TileFetcher
	metrics     *Metrics
	workerCount int
	progress    bool
	// cursor is the index of the next subdomain, shared by all layers.
	cursor int
}

// NewTask 创建下载任务
func NewTask(server TileServer, opts TaskOptions) *Task {
	id, _ := shortid.Generate()

	task := &Task{
		ID:          id,
		Name:        opts.Name,
		Description: opts.Description,
		Server:      server,
		fetcher:     opts.Fetcher,
		metrics:     opts.Metrics,
		workerCount: opts.Workers,
		progress:    opts.Progress,
	}
	if task.Name == "" {
		task.Name = server.Name
	}
	if task.Description == "" {
		task.Description = fmt.Sprintf("%s tile cache", task.Name)
	}
	if task.fetcher == nil {
		task.fetcher = NewFetcher(DefaultTimeout, "")
	}
	if task.metrics == nil {
		task.metrics = NewMetrics("")
	}
	if task.workerCount < 1 {
		task.workerCount = 1
	}
	return task
}

// BuildCache fills store with every tile of box between minZoom and maxZoom using the
// default fetcher, and returns the number of tiles written.
func BuildCache(server TileServer, store TileWriter, box BoundingBox, minZoom, maxZoom int) (int64, error) {
	return NewTask(server, TaskOptions{}).Build(store, box, minZoom, maxZoom)
}

// Build runs the whole cache build. The first failure aborts it; store is closed on
// every return path and only keeps its tiles when Build succeeds.
func (task *Task) Build(store TileWriter, box BoundingBox, minZoom, maxZoom int) (int64, error) {
	start := time.Now()

	if err := task.plan(box, minZoom, maxZoom); err != nil {
		store.Abort()
		return 0, err
	}
	log.Infof("task %s: %s, %s, %d layers, %d tiles", task.ID, task.Server.Name, box, len(task.Layers), task.Total)

	meta := Metadata{
		Name:        task.Name,
		Description: task.Description,
		Format:      task.Server.Format,
		Bounds:      box,
	}
	if err := store.Init(meta); err != nil {
		store.Abort()
		return 0, &BuildError{Zoom: task.Layers[0].Zoom, Err: err}
	}

	ctx := context.Background()
	for _, layer := range task.Layers {
		if err := task.downloadLayer(ctx, store, layer); err != nil {
			log.Errorf("task %s aborted after %d tiles, details: %s", task.ID, task.Current, err)
			store.Abort()
			return 0, err
		}
	}

	if err := store.Close(); err != nil {
		return 0, &BuildError{Zoom: task.Layers[len(task.Layers)-1].Zoom, Err: err}
	}
	log.Infof("task %s finished, %d tiles in %.3fs", task.ID, task.Current, time.Since(start).Seconds())
	return task.Current, nil
}

// plan validates the request and projects the box at every zoom level.
func (task *Task) plan(box BoundingBox, minZoom, maxZoom int) error {
	if err := task.Server.Validate(); err != nil {
		return err
	}
	if maxZoom > task.Server.MaxZoom {
		maxZoom = task.Server.MaxZoom
	}
	if maxZoom > ZoomMax {
		maxZoom = ZoomMax
	}
	if minZoom < ZoomMin || minZoom > maxZoom {
		return fmt.Errorf("%w: min zoom %d, max zoom %d", ErrInvalidZoomRange, minZoom, maxZoom)
	}
	if err := box.Validate(); err != nil {
		return err
	}

	task.Layers = task.Layers[:0]
	task.Total = 0
	for z := minZoom; z <= maxZoom; z++ {
		layer, err := NewLayer(box, maptile.Zoom(z))
		if err != nil {
			return &BuildError{Zoom: maptile.Zoom(z), Err: err}
		}
		log.Debugf("%s", layer)
		task.Layers = append(task.Layers, layer)
		task.Total += layer.Count
	}
	return nil
}

// nextSubdomain returns the subdomain for the next fetch, round robin.
func (task *Task) nextSubdomain() string {
	if task.cursor >= len(task.Server.Subdomains) {
		task.cursor = 0
	}
	s := task.Server.Subdomains[task.cursor]
	task.cursor++
	return s
}

type tileJob struct {
	tile      maptile.Tile
	subdomain string
}

// downloadLayer fetches the layer in windows of workerCount tiles.
func (task *Task) downloadLayer(ctx context.Context, store TileWriter, layer Layer) error {
	log.Infof("task %s layer %s starting", task.ID, layer)
	bar := task.newBar(layer)

	var err error
	batch := make([]tileJob, 0, task.workerCount)
	layer.Each(func(t maptile.Tile) bool {
		batch = append(batch, tileJob{tile: t, subdomain: task.nextSubdomain()})
		if len(batch) == task.workerCount {
			err = task.runBatch(ctx, store, batch, bar)
			batch = batch[:0]
		}
		return err == nil
	})
	if err == nil && len(batch) > 0 {
		err = task.runBatch(ctx, store, batch, bar)
	}

	if bar != nil {
		if err != nil {
			bar.Finish()
		} else {
			bar.FinishPrint(fmt.Sprintf("Task %s Zoom %d finished ~", task.ID, layer.Zoom))
		}
	}
	return err
}

func (task *Task) runBatch(ctx context.Context, store TileWriter, batch []tileJob, bar *pb.ProgressBar) error {
	results := make([][]byte, len(batch))

	if len(batch) == 1 {
		data, err := task.tileFetcher(ctx, batch[0])
		if err != nil {
			return err
		}
		results[0] = data
	} else {
		g, gctx := errgroup.WithContext(ctx)
		for i := range batch {
			g.Go(func() error {
				data, err := task.tileFetcher(gctx, batch[i])
				results[i] = data
				return err
			})
		}
		if err := g.Wait(); err != nil {
			return err
		}
	}

	for i, job := range batch {
		if err := task.saveTile(store, Tile{T: job.tile, C: results[i]}); err != nil {
			return err
		}
		if bar != nil {
			bar.Increment()
		}
	}
	return nil
}

// tileFetcher 瓦片加载器
func (task *Task) tileFetcher(ctx context.Context, job tileJob) ([]byte, error) {
	start := time.Now()
	mt := job.tile

	body, err := task.fetcher.FetchTile(ctx, task.Server, job.subdomain, mt)
	task.metrics.observeFetch(time.Since(start), err)
	if err != nil {
		return nil, &BuildError{Zoom: mt.Z, Tile: &mt, Err: err}
	}

	cost := time.Since(start).Milliseconds()
	log.Debugf("tile(z:%d, x:%d, y:%d), %dms , %.2f kb, subdomain %s ...", mt.Z, mt.X, mt.Y, cost, float32(len(body))/1024.0, job.subdomain)
	return body, nil
}

// saveTile 保存瓦片
func (task *Task) saveTile(store TileWriter, tile Tile) error {
	if err := store.PutTile(tile.T, tile.C); err != nil {
		mt := tile.T
		if !errors.Is(err, ErrWriteFailure) {
			err = &WriteError{Op: "put tile", Err: err}
		}
		return &BuildError{Zoom: mt.Z, Tile: &mt, Err: err}
	}
	task.metrics.observeWrite(tile)
	task.Current++
	return nil
}

func (task *Task) newBar(layer Layer) *pb.ProgressBar {
	if !task.progress || !isatty.IsTerminal(os.Stdout.Fd()) {
		return nil
	}
	bar := pb.New64(layer.Count).Prefix(fmt.Sprintf("Zoom %d : ", layer.Zoom)).Postfix("\n")
	bar.SetRefreshRate(time.Second)
	bar.Start()
	return bar
}

// InitTask builds the cache described by the loaded configuration.
func InitTask() error {
	registry := conf.Registry()
	server, err := registry.Lookup(conf.Cache.Server)
	if err != nil {
		return err
	}

	box, err := conf.BoundingBox()
	if err != nil {
		return err
	}

	path, err := outputFile(conf.Output.File, conf.Output.Overwrite)
	if err != nil {
		return err
	}
	store, err := OpenMBTiles(path)
	if err != nil {
		return err
	}
	SafeExitInst.Register(func() {
		store.Abort()
		log.Warnf("cache %s aborted, tiles discarded", path)
	})

	metrics := NewMetrics(conf.App.Version)
	if conf.Metrics.Listen != "" {
		stop := metrics.Serve(conf.Metrics.Listen)
		defer stop()
		SafeExitInst.Register(stop)
	}

	task := NewTask(server, TaskOptions{
		Name:        conf.Cache.Name,
		Description: conf.Cache.Description,
		Workers:     conf.Task.Workers,
		Progress:    conf.Output.Progress,
		Fetcher:     NewFetcher(time.Duration(conf.Task.Timeout)*time.Millisecond, conf.Task.UserAgent),
		Metrics:     metrics,
	})
	n, err := task.Build(store, box, conf.Cache.Min, conf.Cache.Max)
	if err != nil {
		return err
	}
	log.Infof("%d tiles written to %s", n, path)
	return nil
}

func outputFile(path string, overwrite bool) (string, error) {
	if err := os.MkdirAll(filepath.Dir(path), os.ModePerm); err != nil {
		return "", err
	}
	if _, err := os.Stat(path); err == nil {
		if !overwrite {
			return "", fmt.Errorf("output file %s already exists, set output.overwrite to replace it", path)
		}
		log.Warnf("removing existing output file %s", path)
		if err := os.Remove(path); err != nil {
			return "", err
		}
	}
	return path, nil
}
