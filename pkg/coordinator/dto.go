package coordinator

import (
	"time"

	"github.com/menmos/menmos/pkg/types"
)

type fieldDTO struct {
	Str *string `json:"str,omitempty"`
	Int *int64  `json:"int,omitempty"`
}

func fieldsToDTO(fields map[string]types.FieldValue) map[string]fieldDTO {
	if fields == nil {
		return nil
	}
	out := make(map[string]fieldDTO, len(fields))
	for k, v := range fields {
		if v.IsInt {
			i := v.Int
			out[k] = fieldDTO{Int: &i}
		} else {
			str := v.Str
			out[k] = fieldDTO{Str: &str}
		}
	}
	return out
}

func fieldsFromDTO(dto map[string]fieldDTO) map[string]types.FieldValue {
	if dto == nil {
		return nil
	}
	out := make(map[string]types.FieldValue, len(dto))
	for k, v := range dto {
		switch {
		case v.Int != nil:
			out[k] = types.IntField(*v.Int)
		case v.Str != nil:
			out[k] = types.StringField(*v.Str)
		}
	}
	return out
}

type blobMetaDTO struct {
	BlobID     string              `json:"blob_id,omitempty"`
	Name       string              `json:"name"`
	Size       uint64              `json:"size"`
	BlobType   string              `json:"blob_type"`
	Owner      string              `json:"owner,omitempty"`
	ParentID   *string             `json:"parent_id,omitempty"`
	Tags       []string            `json:"tags,omitempty"`
	Fields     map[string]fieldDTO `json:"fields,omitempty"`
	Status     string              `json:"status,omitempty"`
	CreatedAt  time.Time           `json:"created_at,omitempty"`
	ModifiedAt time.Time           `json:"modified_at,omitempty"`
}

func metaToDTO(m *types.BlobMeta) blobMetaDTO {
	dto := blobMetaDTO{
		BlobID:     string(m.ID),
		Name:       m.Name,
		Size:       m.Size,
		BlobType:   string(m.BlobType),
		Owner:      m.Owner,
		Tags:       m.Tags,
		Fields:     fieldsToDTO(m.Fields),
		Status:     string(m.Status),
		CreatedAt:  m.CreatedAt,
		ModifiedAt: m.ModifiedAt,
	}
	if m.ParentID != nil {
		p := string(*m.ParentID)
		dto.ParentID = &p
	}
	return dto
}

type createBlobRequest struct {
	Name     string              `json:"name"`
	Size     uint64              `json:"size"`
	BlobType string              `json:"blob_type"`
	ParentID *string             `json:"parent_id,omitempty"`
	Tags     []string            `json:"tags,omitempty"`
	Fields   map[string]fieldDTO `json:"fields,omitempty"`
}

type createBlobResponse struct {
	BlobID      string `json:"blob_id"`
	NodeRedirect string `json:"node_redirect"`
	WriteGrant  string `json:"write_grant"`
}

type redirectResponse struct {
	NodeRedirect string `json:"node_redirect"`
	Grant        string `json:"grant"`
}

type updateMetaRequest struct {
	Name     *string             `json:"name,omitempty"`
	ParentID *string             `json:"parent_id,omitempty"`
	Tags     []string            `json:"tags,omitempty"`
	Fields   map[string]fieldDTO `json:"fields,omitempty"`
}
