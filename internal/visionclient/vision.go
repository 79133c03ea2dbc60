// Package visionclient describes image attachments with Google Cloud
// Vision, standing in for the specification's "external vision
// collaborator" (§4.7, §6): image attachments have no text of their own, so
// the Indexing Worker needs a short textual description to embed in their
// place.
package visionclient

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	vision "cloud.google.com/go/vision/v2/apiv1"
	visionpb "cloud.google.com/go/vision/v2/apiv1/visionpb"
	"google.golang.org/api/option"

	"github.com/yungbote/convoindex/internal/domain"
	"github.com/yungbote/convoindex/internal/logger"
)

// Describer produces a short textual stand-in for an image, combining label
// detection and any embedded document text.
type Describer interface {
	Describe(ctx context.Context, image []byte, mime string) (string, error)
	Close() error
}

type gcpDescriber struct {
	log    *logger.Logger
	client *vision.ImageAnnotatorClient
}

// NewGCPDescriber builds a client the way the teacher's gcp.NewVision does:
// application-default credentials unless GOOGLE_APPLICATION_CREDENTIALS(_JSON)
// names an explicit key.
func NewGCPDescriber(log *logger.Logger) (Describer, error) {
	ctx := context.Background()
	client, err := vision.NewImageAnnotatorClient(ctx, clientOptionsFromEnv()...)
	if err != nil {
		return nil, domain.Transient("vision.new_client", "create vision client", err)
	}
	return &gcpDescriber{log: log.With("component", "VisionDescriber"), client: client}, nil
}

func (d *gcpDescriber) Close() error {
	if d.client == nil {
		return nil
	}
	return d.client.Close()
}

func (d *gcpDescriber) Describe(ctx context.Context, image []byte, mime string) (string, error) {
	if len(image) == 0 {
		return "", domain.Permanent("vision.describe", "empty image", nil)
	}
	ctx, cancel := context.WithTimeout(ctx, 60*time.Second)
	defer cancel()

	req := &visionpb.AnnotateImageRequest{
		Image: &visionpb.Image{Content: image},
		Features: []*visionpb.Feature{
			{Type: visionpb.Feature_LABEL_DETECTION, MaxResults: 10},
			{Type: visionpb.Feature_DOCUMENT_TEXT_DETECTION},
		},
	}
	resp, err := d.client.BatchAnnotateImages(ctx, &visionpb.BatchAnnotateImagesRequest{
		Requests: []*visionpb.AnnotateImageRequest{req},
	})
	if err != nil {
		return "", domain.Transient("vision.annotate", "batch annotate", err)
	}
	if resp == nil || len(resp.Responses) == 0 || resp.Responses[0] == nil {
		return "", nil
	}
	r0 := resp.Responses[0]
	if r0.Error != nil && r0.Error.Message != "" {
		return "", domain.Permanent("vision.annotate", r0.Error.Message, nil)
	}

	var b strings.Builder
	if len(r0.LabelAnnotations) > 0 {
		labels := make([]string, 0, len(r0.LabelAnnotations))
		for _, l := range r0.LabelAnnotations {
			if l != nil && l.Description != "" {
				labels = append(labels, l.Description)
			}
		}
		if len(labels) > 0 {
			fmt.Fprintf(&b, "Image showing: %s.\n", strings.Join(labels, ", "))
		}
	}
	if r0.FullTextAnnotation != nil {
		text := strings.TrimSpace(r0.FullTextAnnotation.Text)
		if text != "" {
			b.WriteString(text)
		}
	}
	return strings.TrimSpace(b.String()), nil
}

func clientOptionsFromEnv() []option.ClientOption {
	// Mirrors the teacher's gcp.ClientOptionsFromEnv: prefer an inline JSON
	// blob, then a key file path, then application-default credentials.
	creds := envTrim("GOOGLE_APPLICATION_CREDENTIALS_JSON")
	if creds == "" {
		creds = envTrim("GOOGLE_APPLICATION_CREDENTIALS")
	}
	if creds == "" {
		return nil
	}
	if strings.HasPrefix(creds, "{") {
		return []option.ClientOption{option.WithCredentialsJSON([]byte(creds))}
	}
	return []option.ClientOption{option.WithCredentialsFile(creds)}
}

func envTrim(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}
