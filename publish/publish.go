// Package publish copies a finished video to the destination a job names.
package publish

import (
	"context"
	"fmt"
	"io"
	"mime"
	"path"
	"path/filepath"
	"strings"

	"interpserve/metrics"
)

// Write streams reader to the backend named by backendType. accessInfo carries
// the backend's credentials and the object location (see PrepareAccessInfo).
func Write(ctx context.Context, accessInfo map[string]string, reader io.Reader, backendType string) error {
	var err error
	switch backendType {
	case "directServe":
		err = UploadToDirectServe(ctx, accessInfo, reader)
		if err != nil {
			err = fmt.Errorf("failed to upload to direct serve: %w", err)
		}
	case "s3":
		err = UploadToS3(ctx, accessInfo, reader)
		if err != nil {
			err = fmt.Errorf("failed to upload to S3: %w", err)
		}
	case "gcs":
		err = UploadToGCS(ctx, accessInfo, reader)
		if err != nil {
			err = fmt.Errorf("failed to upload to GCS: %w", err)
		}
	case "sftp":
		err = UploadToSFTP(ctx, accessInfo, reader)
		if err != nil {
			err = fmt.Errorf("failed to upload to SFTP: %w", err)
		}
	default:
		return fmt.Errorf("unknown backend type: %s", backendType)
	}

	result := "ok"
	if err != nil {
		result = "error"
	}
	metrics.PublishTotal.WithLabelValues(backendType, result).Inc()
	return err
}

// PrepareAccessInfo copies creds and fills in where the file goes: filename and
// folder for every backend, plus the backend's own location key when the target
// did not fix one. directServe always writes under serveDir.
func PrepareAccessInfo(creds map[string]string, filename, folder, serveDir string) map[string]string {
	info := make(map[string]string, len(creds)+4)
	for k, v := range creds {
		info[k] = v
	}
	info["filename"] = filename
	if info["folder"] == "" {
		info["folder"] = folder
	} else {
		info["folder"] = path.Join(info["folder"], folder)
	}
	objectPath := path.Join(info["folder"], filename)

	switch info["type"] {
	case "directServe":
		info["baseDir"] = serveDir
	case "s3":
		if info["key"] == "" {
			info["key"] = objectPath
		}
	case "gcs":
		if info["object"] == "" {
			info["object"] = objectPath
		}
	case "sftp":
		if info["remotePath"] == "" {
			info["remotePath"] = objectPath
		} else {
			info["remotePath"] = path.Join(info["remotePath"], objectPath)
		}
	}
	return info
}

// Location describes where Write put the file, for the job record.
func Location(info map[string]string) string {
	switch info["type"] {
	case "directServe":
		return filepath.Join(info["baseDir"], info["folder"], info["filename"])
	case "s3":
		return "s3://" + info["bucket"] + "/" + info["key"]
	case "gcs":
		return "gs://" + info["bucket"] + "/" + info["object"]
	case "sftp":
		return "sftp://" + info["host"] + "/" + info["remotePath"]
	}
	return ""
}

var videoTypes = map[string]string{
	".mp4":  "video/mp4",
	".mkv":  "video/x-matroska",
	".mov":  "video/quicktime",
	".webm": "video/webm",
}

func contentType(name string) string {
	ext := strings.ToLower(path.Ext(name))
	if t, ok := videoTypes[ext]; ok {
		return t
	}
	if t := mime.TypeByExtension(ext); t != "" {
		return t
	}
	return "application/octet-stream"
}
