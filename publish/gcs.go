package publish

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"

	"interpserve/logger"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"
)

// UploadToGCS uploads the video using a service account key. credentialsJSON
// may be raw JSON or base64 of it.
func UploadToGCS(ctx context.Context, accessInfo map[string]string, reader io.Reader) error {
	bucketName := accessInfo["bucket"]
	objectName := accessInfo["object"]
	if bucketName == "" || objectName == "" {
		return fmt.Errorf("missing required accessInfo keys: bucket, object")
	}
	credentialsJSON, err := decodeCredentials(accessInfo["credentialsJSON"])
	if err != nil {
		return err
	}

	client, err := storage.NewClient(ctx, option.WithCredentialsJSON(credentialsJSON))
	if err != nil {
		return fmt.Errorf("storage.NewClient: %w", err)
	}
	defer client.Close()

	wc := client.Bucket(bucketName).Object(objectName).NewWriter(ctx)
	wc.ContentType = contentType(objectName)

	if _, err = io.Copy(wc, reader); err != nil {
		wc.Close()
		return fmt.Errorf("io.Copy: %w", err)
	}
	if err := wc.Close(); err != nil {
		return fmt.Errorf("Writer.Close: %w", err)
	}

	logger.Infof("Successfully uploaded object '%s' to bucket '%s'", objectName, bucketName)
	return nil
}

func decodeCredentials(s string) ([]byte, error) {
	if s == "" {
		return nil, fmt.Errorf("missing required accessInfo key: credentialsJSON")
	}
	if s[0] == '{' {
		return []byte(s), nil
	}
	for _, enc := range []*base64.Encoding{base64.StdEncoding, base64.RawStdEncoding} {
		if b, err := enc.DecodeString(s); err == nil {
			return b, nil
		}
	}
	return nil, fmt.Errorf("credentialsJSON is neither JSON nor base64")
}
