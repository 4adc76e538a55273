// Command s3c is the illustrative CLI collaborator spec.md §6.4 describes:
// a thin flag-parsing front end over pkg/s3 and pkg/s3file, following the
// same minimal flag-only shape as the teacher's cmd/s3d/main.go.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/rs/zerolog"

	"github.com/wzshiming/s3c/pkg/awsclient"
	"github.com/wzshiming/s3c/pkg/awscreds"
	"github.com/wzshiming/s3c/pkg/s3"
	"github.com/wzshiming/s3c/pkg/s3file"
)

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()

	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	subcommand := os.Args[1]
	args := os.Args[2:]

	var err error
	switch subcommand {
	case "list-buckets":
		err = runListBuckets(logger, args)
	case "list-objects":
		err = runListObjects(logger, args)
	case "upload":
		err = runUpload(logger, args)
	case "download":
		err = runDownload(logger, args)
	default:
		usage()
		os.Exit(2)
	}

	if err != nil {
		logger.Error().Err(err).Str("subcommand", subcommand).Msg("command failed")
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: s3c <list-buckets|list-objects|upload|download> [flags]")
}

// clientFlags is the set of flags common to every subcommand: how to
// reach and authenticate against the target endpoint.
type clientFlags struct {
	region   *string
	endpoint *string
	https    *bool
}

func bindClientFlags(fs *flag.FlagSet) clientFlags {
	return clientFlags{
		region:   fs.String("region", "us-east-1", "AWS region"),
		endpoint: fs.String("endpoint", "", "S3-compatible endpoint override (host:port); empty uses the AWS default for --region"),
		https:    fs.Bool("https", true, "use HTTPS when talking to the endpoint"),
	}
}

// newClient builds a pkg/s3.Client from the parsed common flags,
// resolving credentials from AWS_ACCESS_KEY_ID / AWS_SECRET_ACCESS_KEY /
// AWS_SESSION_TOKEN (spec.md §4.B) via awscreds.DefaultChain.
func newClient(f clientFlags) *s3.Client {
	cfg := awsclient.Config{
		Region:   *f.region,
		Endpoint: *f.endpoint,
		HTTPS:    *f.https,
	}
	return s3.New(cfg, awscreds.DefaultChain())
}

func runListBuckets(logger zerolog.Logger, args []string) error {
	fs := flag.NewFlagSet("list-buckets", flag.ExitOnError)
	cf := bindClientFlags(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}

	client := newClient(cf)
	names, err := client.ListBuckets(context.Background())
	if err != nil {
		return fmt.Errorf("list buckets: %w", err)
	}
	for _, name := range names {
		fmt.Println(name)
	}
	logger.Debug().Int("count", len(names)).Msg("listed buckets")
	return nil
}

func runListObjects(logger zerolog.Logger, args []string) error {
	fs := flag.NewFlagSet("list-objects", flag.ExitOnError)
	cf := bindClientFlags(fs)
	bucket := fs.String("bucket", "", "bucket name (required)")
	prefix := fs.String("prefix", "", "key prefix filter")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *bucket == "" {
		return fmt.Errorf("list-objects: --bucket is required")
	}

	client := newClient(cf)
	keys, err := client.ListObjects(context.Background(), *bucket, *prefix, 0)
	if err != nil {
		return fmt.Errorf("list objects: %w", err)
	}
	for _, key := range keys {
		fmt.Println(key)
	}
	logger.Debug().Str("bucket", *bucket).Str("prefix", *prefix).Int("count", len(keys)).Msg("listed objects")
	return nil
}

func runUpload(logger zerolog.Logger, args []string) error {
	fs := flag.NewFlagSet("upload", flag.ExitOnError)
	cf := bindClientFlags(fs)
	bucket := fs.String("bucket", "", "bucket name (required)")
	key := fs.String("key", "", "object key (required)")
	uploadSize := fs.Int("upload-size", s3file.DefaultPartSize, "multipart part size in bytes")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *bucket == "" || *key == "" {
		return fmt.Errorf("upload: --bucket and --key are required")
	}

	client := newClient(cf)
	ctx := context.Background()

	w, err := s3file.NewWriteFile(ctx, client, *bucket, *key, *uploadSize)
	if err != nil {
		return fmt.Errorf("upload: %w", err)
	}
	logger.Debug().Str("bucket", *bucket).Str("key", *key).Str("uploadId", w.UploadID()).Msg("started multipart upload")

	n, err := copyFromStdin(w)
	if err != nil {
		return fmt.Errorf("upload: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("upload: %w", err)
	}

	logger.Info().Str("bucket", *bucket).Str("key", *key).Int64("bytes", n).Msg("upload complete")
	return nil
}

func copyFromStdin(w *s3file.WriteFile) (int64, error) {
	buf := make([]byte, 32*1024)
	var total int64
	for {
		n, readErr := os.Stdin.Read(buf)
		if n > 0 {
			if _, writeErr := w.Write(buf[:n]); writeErr != nil {
				return total, writeErr
			}
			total += int64(n)
		}
		if readErr != nil {
			if errors.Is(readErr, io.EOF) {
				return total, nil
			}
			return total, readErr
		}
	}
}

func runDownload(logger zerolog.Logger, args []string) error {
	fs := flag.NewFlagSet("download", flag.ExitOnError)
	cf := bindClientFlags(fs)
	bucket := fs.String("bucket", "", "bucket name (required)")
	key := fs.String("key", "", "object key (required)")
	chunkSize := fs.Int("chunk-size", s3file.DefaultChunkSize, "ranged-read chunk size in bytes")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *bucket == "" || *key == "" {
		return fmt.Errorf("download: --bucket and --key are required")
	}

	client := newClient(cf)
	ctx := context.Background()

	r := s3file.NewReadFile(ctx, client, *bucket, *key, *chunkSize)
	defer r.Close()

	buf := make([]byte, 32*1024)
	var total int64
	for {
		n, err := r.Read(buf)
		if n > 0 {
			if _, writeErr := os.Stdout.Write(buf[:n]); writeErr != nil {
				return writeErr
			}
			total += int64(n)
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return fmt.Errorf("download: %w", err)
		}
	}

	logger.Info().Str("bucket", *bucket).Str("key", *key).Int64("bytes", total).Msg("download complete")
	return nil
}
