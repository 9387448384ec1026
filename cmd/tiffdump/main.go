// Copyright 2025 <developmentseed.org>. All rights reserved.

// Command tiffdump prints the metadata of a local or remote (Geo)TIFF as
// JSON: the IFD chain, the derived data types, and the georeferencing.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/caarlos0/env/v11"
	"go.uber.org/zap"

	tiff "github.com/developmentseed/async-tiff"
	"github.com/developmentseed/async-tiff/fetch"
)

type config struct {
	BlockSize  uint64 `env:"TIFFDUMP_BLOCK_SIZE" envDefault:"524288"`
	CacheItems int64  `env:"TIFFDUMP_CACHE_ITEMS" envDefault:"256"`
	Readahead  uint64 `env:"TIFFDUMP_READAHEAD" envDefault:"32768"`
	Debug      bool   `env:"TIFFDUMP_DEBUG" envDefault:"false"`
}

type ifdSummary struct {
	Width        uint64       `json:"width"`
	Height       uint64       `json:"height"`
	Bands        uint16       `json:"bands"`
	DataType     string       `json:"data_type"`
	Compression  string       `json:"compression"`
	Tiled        bool         `json:"tiled"`
	TileWidth    uint64       `json:"tile_width,omitempty"`
	TileHeight   uint64       `json:"tile_height,omitempty"`
	RowsPerStrip uint64       `json:"rows_per_strip,omitempty"`
	ChunksAcross int          `json:"chunks_across"`
	ChunksDown   int          `json:"chunks_down"`
	NoData       *float64     `json:"nodata,omitempty"`
	EPSG         *uint16      `json:"epsg,omitempty"`
	Origin       *[2]float64  `json:"origin,omitempty"`
	Resolution   *[2]float64  `json:"resolution,omitempty"`
	SubIFDs      []ifdSummary `json:"sub_ifds,omitempty"`
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "tiffdump:", err)
		os.Exit(1)
	}
}

func run() error {
	var cfg config
	if err := env.Parse(&cfg); err != nil {
		return fmt.Errorf("parsing environment: %w", err)
	}

	logger, err := buildLogger(cfg.Debug)
	if err != nil {
		return err
	}
	defer logger.Sync()
	log := logger.Sugar()

	if len(os.Args) != 2 {
		return fmt.Errorf("usage: tiffdump <path or url>")
	}
	target := os.Args[1]

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	src, closeSrc, err := openSource(ctx, target, cfg, log)
	if err != nil {
		return err
	}
	defer closeSrc()

	t, err := tiff.Open(ctx, src,
		tiff.WithLogger(log),
		tiff.WithReadahead(cfg.Readahead, 1024*1024),
	)
	if err != nil {
		return fmt.Errorf("opening %s: %w", target, err)
	}
	defer t.Close()

	summaries := make([]ifdSummary, 0, len(t.IFDs()))
	for _, ifd := range t.IFDs() {
		summaries = append(summaries, summarize(ifd))
	}
	out, err := json.MarshalIndent(summaries, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}

func buildLogger(debug bool) (*zap.Logger, error) {
	if debug {
		return zap.NewDevelopment()
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	return cfg.Build()
}

func openSource(ctx context.Context, target string, cfg config, log *zap.SugaredLogger) (tiff.Source, func(), error) {
	if strings.HasPrefix(target, "http://") || strings.HasPrefix(target, "https://") {
		src, err := fetch.NewHTTPSource(ctx, target,
			fetch.WithBlockSize(cfg.BlockSize),
			fetch.WithCacheItems(cfg.CacheItems),
			fetch.WithHTTPLogger(log),
		)
		if err != nil {
			return nil, nil, err
		}
		return src, func() {}, nil
	}
	src, err := fetch.NewFileSource(target)
	if err != nil {
		return nil, nil, err
	}
	return src, func() { src.Close() }, nil
}

func summarize(ifd *tiff.IFD) ifdSummary {
	s := ifdSummary{
		Width:        ifd.ImageWidth,
		Height:       ifd.ImageLength,
		Bands:        ifd.SamplesPerPixel,
		DataType:     ifd.DataType().String(),
		Compression:  ifd.Compression.String(),
		Tiled:        ifd.Tiled(),
		TileWidth:    ifd.TileWidth,
		TileHeight:   ifd.TileLength,
		RowsPerStrip: ifd.RowsPerStrip,
		ChunksAcross: ifd.ChunksAcross(),
		ChunksDown:   ifd.ChunksDown(),
	}
	if v, ok := ifd.NoData(); ok {
		s.NoData = &v
	}
	if ifd.GeoKeys != nil {
		if code, ok := ifd.GeoKeys.EPSGCode(); ok {
			s.EPSG = &code
		}
	}
	if gt, ok := ifd.GeoTransform(); ok {
		x, y := gt.Origin()
		xres, yres := gt.Resolution()
		s.Origin = &[2]float64{x, y}
		s.Resolution = &[2]float64{xres, yres}
	}
	for _, sub := range ifd.SubIFDs {
		s.SubIFDs = append(s.SubIFDs, summarize(sub))
	}
	return s
}
