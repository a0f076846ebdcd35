// Package archive exports stored candles as Snappy-compressed Parquet files
// to S3-compatible object storage.
package archive

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/source"
	"github.com/xitongsys/parquet-go/writer"

	"github.com/akarazhev/crypto-scout-collector-sub000/internal/logger"
	"github.com/akarazhev/crypto-scout-collector-sub000/internal/model"
)

// Config holds the object storage settings.
type Config struct {
	Bucket          string `yaml:"bucket"`
	Prefix          string `yaml:"prefix"`
	Region          string `yaml:"region"`
	Endpoint        string `yaml:"endpoint"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
	PathStyle       bool   `yaml:"path_style"`
}

// Uploader is the subset of the S3 client the exporter needs.
type Uploader interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// NewS3Client builds a client from cfg. Static credentials are used when
// both keys are set, otherwise the default AWS chain.
func NewS3Client(ctx context.Context, cfg Config) (*s3.Client, error) {
	loadOpts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.Region)}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.PathStyle
	}), nil
}

// memFile is an in-memory parquet sink.
type memFile struct {
	buf *bytes.Buffer
}

func newMemFile() *memFile { return &memFile{buf: &bytes.Buffer{}} }

func (m *memFile) Create(string) (source.ParquetFile, error) { return m, nil }
func (m *memFile) Open(string) (source.ParquetFile, error)   { return m, nil }
func (m *memFile) Seek(int64, int) (int64, error)            { return int64(m.buf.Len()), nil }
func (m *memFile) Read([]byte) (int, error)                  { return 0, io.EOF }
func (m *memFile) Write(b []byte) (int, error)               { return m.buf.Write(b) }
func (m *memFile) Close() error                              { return nil }

// klineRecord is the Parquet schema of an archived candle.
type klineRecord struct {
	Symbol            string   `parquet:"name=symbol, type=BYTE_ARRAY, convertedtype=UTF8"`
	Interval          string   `parquet:"name=interval, type=BYTE_ARRAY, convertedtype=UTF8"`
	Start             int64    `parquet:"name=start, type=INT64, convertedtype=TIMESTAMP_MILLIS"`
	End               int64    `parquet:"name=end, type=INT64, convertedtype=TIMESTAMP_MILLIS"`
	Open              float64  `parquet:"name=open, type=DOUBLE"`
	High              float64  `parquet:"name=high, type=DOUBLE"`
	Low               float64  `parquet:"name=low, type=DOUBLE"`
	Close             float64  `parquet:"name=close, type=DOUBLE"`
	Volume            float64  `parquet:"name=volume, type=DOUBLE"`
	Turnover          float64  `parquet:"name=turnover, type=DOUBLE"`
	MarketCap         *float64 `parquet:"name=market_cap, type=DOUBLE, repetitiontype=OPTIONAL"`
	CirculatingSupply *float64 `parquet:"name=circulating_supply, type=DOUBLE, repetitiontype=OPTIONAL"`
}

// EncodeKlines renders rows as a Snappy-compressed Parquet file.
func EncodeKlines(rows []model.Kline) ([]byte, error) {
	mf := newMemFile()
	pw, err := writer.NewParquetWriter(mf, new(klineRecord), 1)
	if err != nil {
		return nil, fmt.Errorf("parquet writer: %w", err)
	}
	pw.CompressionType = parquet.CompressionCodec_SNAPPY

	for _, k := range rows {
		rec := klineRecord{
			Symbol:            strings.ToUpper(k.Symbol),
			Interval:          k.Interval,
			Start:             k.Start.UTC().UnixMilli(),
			End:               k.End.UTC().UnixMilli(),
			Open:              k.Open,
			High:              k.High,
			Low:               k.Low,
			Close:             k.Close,
			Volume:            k.Volume,
			Turnover:          k.Turnover,
			MarketCap:         k.MarketCap,
			CirculatingSupply: k.CirculatingSupply,
		}
		if err := pw.Write(rec); err != nil {
			return nil, fmt.Errorf("parquet write: %w", err)
		}
	}
	if err := pw.WriteStop(); err != nil {
		return nil, fmt.Errorf("parquet finish: %w", err)
	}
	return mf.buf.Bytes(), nil
}

// Key returns the object key prefix/table/symbol/interval/<from>_<to>.parquet
// with both bounds in epoch milliseconds.
func Key(prefix, table, symbol, interval string, from, to time.Time) string {
	name := fmt.Sprintf("%d_%d.parquet", from.UTC().UnixMilli(), to.UTC().UnixMilli())
	return strings.TrimPrefix(path.Join(prefix, table, strings.ToUpper(symbol), interval, name), "/")
}

// Result describes one export.
type Result struct {
	Key   string
	Rows  int
	Bytes int
}

// Exporter copies stored candles to object storage.
type Exporter struct {
	up     Uploader
	bucket string
	prefix string
	log    *logger.Entry
}

// NewExporter creates an exporter writing to bucket under prefix.
func NewExporter(up Uploader, bucket, prefix string) (*Exporter, error) {
	bucket = strings.TrimSpace(bucket)
	if bucket == "" {
		return nil, fmt.Errorf("archive: s3 bucket not configured")
	}
	return &Exporter{
		up:     up,
		bucket: bucket,
		prefix: strings.Trim(prefix, "/"),
		log:    logger.WithComponent("archive").WithField("bucket", bucket),
	}, nil
}

// Export uploads the candles of table with start in [from, to]. An empty
// range uploads nothing and returns a zero Result.
func (e *Exporter) Export(ctx context.Context, table string, klines model.KlineReader, symbol, interval string, from, to time.Time) (Result, error) {
	rows, err := klines.Query(ctx, symbol, interval, from, to)
	if err != nil {
		return Result{}, fmt.Errorf("archive: read %s: %w", table, err)
	}
	if len(rows) == 0 {
		e.log.WithFields(logger.Fields{"table": table, "symbol": symbol}).Info("nothing to export")
		return Result{}, nil
	}

	data, err := EncodeKlines(rows)
	if err != nil {
		return Result{}, fmt.Errorf("archive: encode %s: %w", table, err)
	}
	key := Key(e.prefix, table, symbol, interval, from, to)
	_, err = e.up.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(e.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/vnd.apache.parquet"),
	})
	if err != nil {
		return Result{}, fmt.Errorf("archive: upload %s: %w", key, err)
	}

	res := Result{Key: key, Rows: len(rows), Bytes: len(data)}
	e.log.WithFields(logger.Fields{
		"s3_key":  key,
		"records": res.Rows,
		"bytes":   res.Bytes,
	}).Info("klines uploaded")
	return res, nil
}
