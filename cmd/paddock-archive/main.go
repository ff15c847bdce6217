// Command paddock-archive inspects the resolution archive in object storage.
//
//	paddock-archive list -config config.toml -prefix archive/pools/
//	paddock-archive get -config config.toml -path archive/pools/season-2026/<id>.json
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"

	s3blob "github.com/paddockmarkets/paddock/internal/blob/s3"
	"github.com/paddockmarkets/paddock/internal/config"
	"github.com/paddockmarkets/paddock/internal/domain"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	var err error
	switch os.Args[1] {
	case "list":
		err = runList(os.Args[2:])
	case "get":
		err = runGet(os.Args[2:])
	default:
		usage()
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: paddock-archive <list|get> [flags]")
}

// openReader builds a BlobReader from the S3 section of the config file.
func openReader(ctx context.Context, configPath string) (domain.BlobReader, func(), error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("load config %s: %w", configPath, err)
	}
	if !cfg.S3.Enabled {
		return nil, nil, fmt.Errorf("s3 is not enabled in %s", configPath)
	}

	client, err := s3blob.New(ctx, s3blob.ClientConfig{
		Endpoint:       cfg.S3.Endpoint,
		Region:         cfg.S3.Region,
		Bucket:         cfg.S3.Bucket,
		AccessKey:      cfg.S3.AccessKey,
		SecretKey:      cfg.S3.SecretKey,
		UseSSL:         cfg.S3.UseSSL,
		ForcePathStyle: cfg.S3.ForcePathStyle,
	})
	if err != nil {
		return nil, nil, err
	}
	return s3blob.NewReader(client), func() { _ = client.Close() }, nil
}

// runList prints every archived snapshot under -prefix.
func runList(args []string) error {
	fs := flag.NewFlagSet("list", flag.ExitOnError)
	configPath := fs.String("config", "config.toml", "path to configuration file")
	prefix := fs.String("prefix", "archive/", "key prefix to list")
	fs.Parse(args)

	ctx := context.Background()
	reader, closeFn, err := openReader(ctx, *configPath)
	if err != nil {
		return err
	}
	defer closeFn()

	infos, err := reader.List(ctx, *prefix)
	if err != nil {
		return err
	}
	for _, info := range infos {
		fmt.Printf("%s\t%d\t%s\n", info.Path, info.Size, info.LastModified.Format("2006-01-02 15:04:05"))
	}
	return nil
}

// runGet streams one archived snapshot to stdout.
func runGet(args []string) error {
	fs := flag.NewFlagSet("get", flag.ExitOnError)
	configPath := fs.String("config", "config.toml", "path to configuration file")
	path := fs.String("path", "", "archive key to fetch")
	fs.Parse(args)

	if *path == "" {
		return fmt.Errorf("get: -path is required")
	}

	ctx := context.Background()
	reader, closeFn, err := openReader(ctx, *configPath)
	if err != nil {
		return err
	}
	defer closeFn()

	body, err := reader.Get(ctx, *path)
	if err != nil {
		return err
	}
	defer body.Close()

	_, err = io.Copy(os.Stdout, body)
	return err
}
