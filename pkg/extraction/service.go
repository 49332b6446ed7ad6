package extraction

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"mime"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/licitahub/licitahub/pkg/models"
	"github.com/licitahub/licitahub/pkg/observability"
	"github.com/licitahub/licitahub/pkg/persistence"
)

// maxDownloadSize caps one attachment download.
const maxDownloadSize = 512 << 20

// Lister resolves the downloadable attachments of one opportunity. Provider
// adapters that publish attachments implement it.
type Lister interface {
	ListAttachments(ctx context.Context, externalID string) ([]models.Attachment, error)
}

// ObjectStore is the slice of the blob store the extractor needs.
type ObjectStore interface {
	Put(ctx context.Context, key string, data []byte, contentType string) (string, error)
}

// Service runs the download → unpack → extract → persist pipeline.
type Service struct {
	store      *persistence.Service
	objects    ObjectStore
	listers    map[string]Lister
	engines    []Engine
	httpClient *http.Client
	tempDir    string
	logger     observability.Logger
	now        func() time.Time
}

// NewService wires the extractor. objects may be nil, in which case blobs
// are not retained and storage_url stays empty.
func NewService(store *persistence.Service, objects ObjectStore, listers map[string]Lister, logger observability.Logger) *Service {
	if logger == nil {
		logger = observability.NewNoopLogger()
	}
	return &Service{
		store:   store,
		objects: objects,
		listers: listers,
		engines: []Engine{MarkdownEngine{}, PDFPagesEngine{}, PDFPlainEngine{}},
		httpClient: &http.Client{
			Timeout: 5 * time.Minute,
		},
		tempDir: defaultTempDir(),
		logger:  logger.WithPrefix("extraction"),
		now:     time.Now,
	}
}

// Process downloads and extracts every attachment of one stored opportunity,
// returning the persisted leaf documents. Containers (ZIPs) are unpacked
// recursively and never persisted themselves.
func (s *Service) Process(ctx context.Context, stored *persistence.Stored) ([]models.Document, error) {
	s.gcTempFiles()

	lister, ok := s.listers[stored.Opportunity.ProviderName]
	if !ok {
		return nil, fmt.Errorf("provider %s publishes no attachments", stored.Opportunity.ProviderName)
	}

	attachments, err := lister.ListAttachments(ctx, stored.Opportunity.ExternalID)
	if err != nil {
		return nil, fmt.Errorf("list attachments of %s: %w", stored.Opportunity.Key(), err)
	}

	var docs []models.Document
	for _, att := range attachments {
		data, err := s.download(ctx, att.URL)
		if err != nil {
			s.logger.Error("attachment download failed", map[string]interface{}{
				"opportunity": stored.ID, "url": att.URL, "error": err.Error(),
			})
			continue
		}

		leafDocs, err := s.processPayload(ctx, stored.ID, att.Title, data, 0)
		if err != nil {
			s.logger.Error("attachment processing failed", map[string]interface{}{
				"opportunity": stored.ID, "title": att.Title, "error": err.Error(),
			})
			continue
		}
		docs = append(docs, leafDocs...)
	}

	s.logger.Info("extraction finished", map[string]interface{}{
		"opportunity": stored.ID, "attachments": len(attachments), "documents": len(docs),
	})
	return docs, nil
}

// download fetches one URL with exponential backoff. Client errors other
// than 429 are permanent.
func (s *Service) download(ctx context.Context, url string) ([]byte, error) {
	var out []byte
	op := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return backoff.Permanent(err)
		}

		resp, err := s.httpClient.Do(req)
		if err != nil {
			return err
		}
		defer func() { _ = resp.Body.Close() }()

		if resp.StatusCode != http.StatusOK {
			err := fmt.Errorf("download %s: status %d", url, resp.StatusCode)
			if resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests {
				return backoff.Permanent(err)
			}
			return err
		}

		out, err = io.ReadAll(io.LimitReader(resp.Body, maxDownloadSize))
		return err
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 3), ctx)
	if err := backoff.Retry(op, policy); err != nil {
		return nil, err
	}
	return out, nil
}

// processPayload dispatches one downloaded payload: ZIPs recurse, leaves go
// through the engine chain and are persisted.
func (s *Service) processPayload(ctx context.Context, opportunityID int64, title string, data []byte, depth int) ([]models.Document, error) {
	if isZip(data) {
		if depth >= maxZipDepth {
			s.logger.Warn("zip nesting too deep, skipping", map[string]interface{}{
				"title": title, "depth": depth,
			})
			return nil, nil
		}
		entries, err := unpackZip(data)
		if err != nil {
			return nil, err
		}

		var docs []models.Document
		for _, entry := range entries {
			leafDocs, err := s.processPayload(ctx, opportunityID, entry.Name, entry.Data, depth+1)
			if err != nil {
				s.logger.Warn("zip entry failed", map[string]interface{}{
					"entry": entry.Name, "error": err.Error(),
				})
				continue
			}
			docs = append(docs, leafDocs...)
		}
		return docs, nil
	}

	doc, err := s.extractLeaf(ctx, opportunityID, title, data)
	if err != nil {
		return nil, err
	}
	return []models.Document{*doc}, nil
}

func (s *Service) extractLeaf(ctx context.Context, opportunityID int64, title string, data []byte) (*models.Document, error) {
	sum := sha256.Sum256(data)
	hash := hex.EncodeToString(sum[:])
	mimeType := detectMime(title, data)

	doc := &models.Document{
		OpportunityID:    opportunityID,
		Title:            title,
		SizeBytes:        int64(len(data)),
		ContentHash:      hash,
		MimeType:         mimeType,
		ExtractionStatus: models.ExtractionProcessing,
	}

	if s.objects != nil {
		key := hash + strings.ToLower(filepath.Ext(title))
		storageURL, err := s.objects.Put(ctx, key, data, mimeType)
		if err != nil {
			s.logger.Warn("blob upload failed", map[string]interface{}{
				"title": title, "error": err.Error(),
			})
		} else {
			doc.StorageURL = storageURL
		}
	}

	path, err := s.tempFile(data, filepath.Ext(title))
	if err != nil {
		return nil, err
	}

	result := s.runChain(ctx, path, mimeType)
	if result != nil && result.Success {
		text := result.Text
		doc.ExtractedText = &text
		doc.ExtractionEngine = result.Engine
		doc.PageCount = result.PageCount
		doc.ExtractionStatus = models.ExtractionDone
	} else {
		doc.ExtractionStatus = models.ExtractionFailed
	}

	if err := s.store.SaveDocument(ctx, doc); err != nil {
		return nil, err
	}
	return doc, nil
}

// runChain tries the engines in priority order until one succeeds.
func (s *Service) runChain(ctx context.Context, path, mimeType string) *Result {
	for _, engine := range s.engines {
		if !engine.Supports(mimeType) {
			continue
		}
		result, err := engine.Extract(ctx, path)
		if err != nil {
			s.logger.Debug("engine failed, trying next", map[string]interface{}{
				"engine": engine.Name(), "error": err.Error(),
			})
			continue
		}
		if result.Success {
			return result
		}
	}
	return nil
}

// detectMime prefers the filename extension, which government portals get
// right more often than their Content-Type headers, and sniffs otherwise.
func detectMime(name string, data []byte) string {
	if byExt := mime.TypeByExtension(strings.ToLower(filepath.Ext(name))); byExt != "" {
		return byExt
	}
	head := data
	if len(head) > 512 {
		head = head[:512]
	}
	detected := http.DetectContentType(head)
	if detected == "application/octet-stream" && isPDF(data) {
		return "application/pdf"
	}
	return detected
}

func isPDF(data []byte) bool {
	return len(data) >= 5 && string(data[:5]) == "%PDF-"
}
