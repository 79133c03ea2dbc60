package indexer

import (
	"bytes"
	"compress/zlib"
	"io"
	"regexp"
	"strings"

	"github.com/google/uuid"

	"github.com/yungbote/convoindex/internal/chunking"
	"github.com/yungbote/convoindex/internal/dbctx"
	"github.com/yungbote/convoindex/internal/domain"
	"github.com/yungbote/convoindex/internal/jobkind"
	"github.com/yungbote/convoindex/internal/vectorstore"
)

// ingestAttachmentHandler implements ingest_attachment(attachment_id)
// (§4.7): fetch the attachment's bytes, extract/chunk text per its
// source_type, embed each chunk and upsert it, then mark the attachment
// completed or failed.
type ingestAttachmentHandler struct{ d *Deps }

func (h *ingestAttachmentHandler) JobType() string { return jobkind.IngestAttachment }

func (h *ingestAttachmentHandler) Handle(jc *JobContext) error {
	var p jobkind.IngestAttachmentPayload
	if err := jc.Decode(&p); err != nil {
		return domain.Permanent("ingest_attachment.decode", "bad payload", err)
	}
	id, err := uuid.Parse(p.AttachmentID)
	if err != nil {
		return domain.Permanent("ingest_attachment.parse_id", "malformed attachment_id", err)
	}
	dbc := dbctx.New(jc.Ctx)

	att, err := h.d.Attachments.GetByID(dbc, id)
	if err != nil {
		return domain.Transient("ingest_attachment.get", "load attachment", err)
	}
	if att == nil || att.IsDeleted {
		return nil
	}

	if err := h.d.Attachments.SetStatus(dbc, att.ID, domain.ProcessingProcessing, nil); err != nil {
		return domain.Transient("ingest_attachment.set_processing", "mark attachment processing", err)
	}

	chunks, err := h.extract(jc, att)
	if err != nil {
		msg := err.Error()
		if setErr := h.d.Attachments.SetStatus(dbc, att.ID, domain.ProcessingFailed, &msg); setErr != nil {
			jc.Log.Error("failed to record attachment failure", "error", setErr)
		}
		if domain.KindOf(err) == domain.KindPermanent {
			return nil // permanent extraction failure, already recorded; don't retry forever.
		}
		return err
	}
	if len(chunks) == 0 {
		return h.d.Attachments.SetStatus(dbc, att.ID, domain.ProcessingCompleted, nil)
	}

	rows := make([]domain.DocumentChunk, len(chunks))
	for i, c := range chunks {
		text := c.Text
		if c.HeadingPath != "" {
			text = c.HeadingPath + "\n" + c.Text
		}
		rows[i] = domain.DocumentChunk{
			AttachmentID: att.ID,
			GuildID:      att.GuildID,
			ChunkIndex:   i,
			ChunkText:    text,
		}
	}
	if err := h.d.Chunks.CreateMany(dbc, rows); err != nil {
		return domain.Transient("ingest_attachment.create_chunks", "insert document chunks", err)
	}

	var vectorKeys []string
	for _, row := range rows {
		vec, err := h.d.Em.Embed(jc.Ctx, row.ChunkText)
		if err != nil {
			return err
		}
		key := row.ID.String()
		point := vectorstore.Point{
			ID:        key,
			Vector:    vec,
			GuildID:   att.GuildID,
			Kind:      "doc_chunk",
			ChannelID: "",
			SourceIDs: []string{att.MessageID},
			Preview:   truncate(row.ChunkText, previewMaxBytes),
		}
		if err := h.d.VS.Upsert(jc.Ctx, []vectorstore.Point{point}); err != nil {
			return err
		}
		if err := h.d.Chunks.MarkIndexed(dbc, row.ID, key); err != nil {
			return domain.Transient("ingest_attachment.mark_indexed", "mark chunk indexed", err)
		}
		vectorKeys = append(vectorKeys, key)
	}

	if err := h.d.Attachments.AppendVectorKeys(dbc, att.ID, vectorKeys); err != nil {
		return domain.Transient("ingest_attachment.append_keys", "record attachment vector keys", err)
	}
	return h.d.Attachments.SetStatus(dbc, att.ID, domain.ProcessingCompleted, nil)
}

func (h *ingestAttachmentHandler) extract(jc *JobContext, att *domain.Attachment) ([]chunking.Chunk, error) {
	maxBytes := h.maxBytesFor(att.SourceType)
	raw, err := h.d.Fetch.Fetch(jc.Ctx, att.SourceURL, maxBytes)
	if err != nil {
		return nil, err // fetcher already classifies transient vs. permanent.
	}

	switch att.SourceType {
	case domain.SourceTypeImage:
		desc, err := h.d.Vision.Describe(jc.Ctx, raw, att.Mime)
		if err != nil {
			return nil, err
		}
		if desc == "" {
			return nil, nil
		}
		return []chunking.Chunk{{Text: desc}}, nil

	case domain.SourceTypePDF:
		pages := extractPDFText(raw)
		if len(pages) == 0 {
			return nil, domain.Permanent("ingest_attachment.pdf_no_text_layer",
				"scanned PDF detected (no extractable text layer); OCR is not implemented", nil)
		}
		return chunking.SplitPages(pages, h.d.ChunkParams), nil

	case domain.SourceTypeText, domain.SourceTypeMarkdown:
		return chunking.SplitText(string(raw), h.d.ChunkParams), nil

	default:
		return nil, domain.Permanent("ingest_attachment.source_type", "unsupported source_type: "+string(att.SourceType), nil)
	}
}

func (h *ingestAttachmentHandler) maxBytesFor(t domain.AttachmentSourceType) int64 {
	switch t {
	case domain.SourceTypeImage:
		return h.d.Cfg.AttachmentMaxImageBytes
	case domain.SourceTypePDF:
		return h.d.Cfg.AttachmentMaxPDFBytes
	default:
		return h.d.Cfg.AttachmentMaxTextBytes
	}
}

var (
	pdfStreamRe  = regexp.MustCompile(`(?s)stream\r?\n(.*?)endstream`)
	pdfTjRe      = regexp.MustCompile(`(?s)\((?:[^()\\]|\\.)*\)\s*Tj`)
	pdfTJRe      = regexp.MustCompile(`(?s)\[((?:[^\[\]\\]|\\.)*)\]\s*TJ`)
	pdfLiteralRe = regexp.MustCompile(`(?s)\((?:[^()\\]|\\.)*\)`)
)

// extractPDFText extracts the literal text layer from a PDF's content
// streams: it walks each "stream ... endstream" block (undoing Flate
// compression where present, the common case) and reads the strings passed
// to the Tj/TJ text-showing operators, in document order. It does not parse
// the PDF object graph beyond those stream boundaries, so each content
// stream stands in for one page. A PDF whose pages are scanned images has
// no Tj/TJ operators at all and yields no pages here; the caller treats that
// as a permanent extraction failure rather than fabricating chunks from the
// compressed binary, mirroring how the platform's own document pipeline
// reports a scanned PDF with no text layer rather than silently OCR'ing it.
func extractPDFText(raw []byte) []string {
	var pages []string
	for _, m := range pdfStreamRe.FindAllSubmatch(raw, -1) {
		body := m[1]
		if decoded, err := inflatePDFStream(body); err == nil {
			body = decoded
		}
		if text := pdfShowTextOperators(body); text != "" {
			pages = append(pages, text)
		}
	}
	return pages
}

func inflatePDFStream(body []byte) ([]byte, error) {
	r, err := zlib.NewReader(bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return io.ReadAll(r)
}

func pdfShowTextOperators(body []byte) string {
	var sb strings.Builder
	for _, m := range pdfTjRe.FindAll(body, -1) {
		if lit := pdfLiteralRe.Find(m); lit != nil {
			sb.WriteString(pdfUnescapeLiteral(lit))
			sb.WriteByte(' ')
		}
	}
	for _, m := range pdfTJRe.FindAllSubmatch(body, -1) {
		for _, lit := range pdfLiteralRe.FindAll(m[1], -1) {
			sb.WriteString(pdfUnescapeLiteral(lit))
		}
		sb.WriteByte('\n')
	}
	return strings.TrimSpace(sb.String())
}

func pdfUnescapeLiteral(lit []byte) string {
	s := lit
	if len(s) >= 2 && s[0] == '(' && s[len(s)-1] == ')' {
		s = s[1 : len(s)-1]
	}
	var out strings.Builder
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c == '\\' && i+1 < len(s) {
			i++
			switch s[i] {
			case 'n':
				out.WriteByte('\n')
			case 'r':
				out.WriteByte('\r')
			case 't':
				out.WriteByte('\t')
			default:
				out.WriteByte(s[i])
			}
			continue
		}
		out.WriteByte(c)
	}
	return out.String()
}
