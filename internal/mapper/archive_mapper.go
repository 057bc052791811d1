package mapper

import (
	"encoding/json"
	"strconv"

	"tabkeeper-be/internal/entity"
	"tabkeeper-be/internal/model"

	"gorm.io/datatypes"
)

type ArchiveMapper struct{}

func NewArchiveMapper() *ArchiveMapper {
	return &ArchiveMapper{}
}

func (m *ArchiveMapper) PageToModel(p *entity.ArchivedPage) *model.ArchivedPage {
	if p == nil {
		return nil
	}
	return &model.ArchivedPage{
		Id:             p.Id,
		OwnerId:        p.OwnerId,
		ItemId:         p.ItemId,
		ItemKind:       string(p.ItemKind),
		Url:            p.Url,
		HtmlPath:       p.HtmlPath,
		ScreenshotPath: p.ScreenshotPath,
		PdfPath:        p.PdfPath,
		CreatedAt:      p.CreatedAt,
	}
}

func (m *ArchiveMapper) PageToEntity(p *model.ArchivedPage) *entity.ArchivedPage {
	if p == nil {
		return nil
	}
	return &entity.ArchivedPage{
		Id:             p.Id,
		OwnerId:        p.OwnerId,
		ItemId:         p.ItemId,
		ItemKind:       entity.ItemKind(p.ItemKind),
		Url:            p.Url,
		HtmlPath:       p.HtmlPath,
		ScreenshotPath: p.ScreenshotPath,
		PdfPath:        p.PdfPath,
		CreatedAt:      p.CreatedAt,
	}
}

// DeadLetterToModel stores the raw payload as jsonb; payloads that are not
// valid JSON are kept as a quoted string.
func (m *ArchiveMapper) DeadLetterToModel(d *entity.DeadLetterJob) *model.DeadLetterJob {
	if d == nil {
		return nil
	}

	payload := datatypes.JSON(d.Payload)
	if !json.Valid(d.Payload) {
		payload = datatypes.JSON(strconv.Quote(string(d.Payload)))
	}

	return &model.DeadLetterJob{
		Id:        d.Id,
		JobId:     d.JobId,
		Lane:      d.Lane,
		Payload:   payload,
		Error:     d.Error,
		Attempts:  d.Attempts,
		Permanent: d.Permanent,
		CreatedAt: d.CreatedAt,
	}
}
