package studiocms

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
	"github.com/labstack/echo/v4"

	"github.com/eringen/studiocms/backend"
)

// Field is a JSON value that remembers whether its key was present in the
// request body and whether it was an explicit null.
type Field[T any] struct {
	Set   bool
	Null  bool
	Value T
}

func (f *Field[T]) UnmarshalJSON(b []byte) error {
	f.Set = true
	if bytes.Equal(bytes.TrimSpace(b), []byte("null")) {
		f.Null = true
		return nil
	}
	return json.Unmarshal(b, &f.Value)
}

// StringList accepts either a JSON array of strings or a single
// comma-separated string.
type StringList []string

func (l *StringList) UnmarshalJSON(b []byte) error {
	var raw any
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	switch v := raw.(type) {
	case nil:
		*l = nil
	case string:
		*l = SplitList(v)
	case []any:
		items := make([]string, 0, len(v))
		for _, item := range v {
			s, ok := item.(string)
			if !ok {
				return errors.New("list items must be strings")
			}
			items = append(items, s)
		}
		*l = FilterEmpty(items)
	default:
		return errors.New("must be a list or a comma-separated string")
	}
	return nil
}

// FlexBool accepts a JSON boolean or the strings "true" and "false".
type FlexBool bool

func (fb *FlexBool) UnmarshalJSON(b []byte) error {
	var raw any
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	switch v := raw.(type) {
	case bool:
		*fb = FlexBool(v)
	case string:
		s := strings.TrimSpace(v)
		if s == "" {
			*fb = false
			return nil
		}
		parsed, err := strconv.ParseBool(s)
		if err != nil {
			return fmt.Errorf("invalid boolean %q", v)
		}
		*fb = FlexBool(parsed)
	default:
		return errors.New("must be a boolean")
	}
	return nil
}

// FlexInt accepts a JSON integer or a numeric string. An empty string
// decodes as an invalid (null) value.
type FlexInt struct {
	N     int
	Valid bool
}

func (fi *FlexInt) UnmarshalJSON(b []byte) error {
	var raw any
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	switch v := raw.(type) {
	case float64:
		if v != math.Trunc(v) || v < math.MinInt32 || v > math.MaxInt32 {
			return fmt.Errorf("invalid integer %v", v)
		}
		*fi = FlexInt{N: int(v), Valid: true}
	case string:
		s := strings.TrimSpace(v)
		if s == "" {
			*fi = FlexInt{}
			return nil
		}
		n, err := strconv.ParseInt(s, 10, 32)
		if err != nil {
			return fmt.Errorf("invalid integer %q", v)
		}
		*fi = FlexInt{N: int(n), Valid: true}
	default:
		return errors.New("must be an integer")
	}
	return nil
}

// decodeJSON reads the request body into v. Unknown keys are ignored.
func decodeJSON(c echo.Context, v any) error {
	if err := json.NewDecoder(c.Request().Body).Decode(v); err != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) && typeErr.Field != "" {
			return invalidFields(validation.Errors{
				typeErr.Field: fmt.Errorf("must be a %s", typeErr.Type),
			})
		}
		return badRequest("Invalid JSON body: " + err.Error())
	}
	return nil
}

// requiredText fails when a required text field is null or blank. On update
// an absent field passes.
func requiredText(create bool) validation.Rule {
	return validation.By(func(value any) error {
		f, _ := value.(Field[string])
		if !f.Set && !create {
			return nil
		}
		if f.Null || strings.TrimSpace(f.Value) == "" {
			return validation.ErrRequired
		}
		return nil
	})
}

var timestampLayouts = []string{time.RFC3339Nano, "2006-01-02T15:04:05", "2006-01-02"}

func parseTimestamp(s string) (time.Time, error) {
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid timestamp %q", s)
}

func validTimestamp(value any) error {
	f, _ := value.(Field[string])
	s := strings.TrimSpace(f.Value)
	if !f.Set || f.Null || s == "" {
		return nil
	}
	if _, err := parseTimestamp(s); err != nil {
		return validation.NewError("validation_timestamp", "must be an RFC 3339 timestamp or a date")
	}
	return nil
}

func putText(rec backend.Record, col string, f Field[string]) {
	if f.Set {
		rec[col] = strings.TrimSpace(f.Value)
	}
}

func putOptionalText(rec backend.Record, col string, f Field[string], create bool) {
	switch {
	case f.Set && !f.Null && strings.TrimSpace(f.Value) != "":
		rec[col] = strings.TrimSpace(f.Value)
	case f.Set || create:
		rec[col] = nil
	}
}

// putList writes a normalized list. Tags are never null; a gallery with no
// entries is stored as null.
func putList(rec backend.Record, col string, f Field[StringList], create, emptyIsNull bool) {
	if !f.Set && !create {
		return
	}
	items := []string(f.Value)
	if len(items) == 0 {
		if emptyIsNull {
			rec[col] = nil
		} else {
			rec[col] = []string{}
		}
		return
	}
	rec[col] = items
}

type projectInput struct {
	Title           Field[string]     `json:"title"`
	Description     Field[string]     `json:"description"`
	Category        Field[string]     `json:"category"`
	Tags            Field[StringList] `json:"tags"`
	ImageURL        Field[string]     `json:"image_url"`
	MobileImageURL  Field[string]     `json:"mobile_image_url"`
	Gallery         Field[StringList] `json:"gallery"`
	Metrics         Field[Metrics]    `json:"metrics"`
	LongDescription Field[string]     `json:"long_description"`
	WebsiteURL      Field[string]     `json:"website_url"`
	VideoURL        Field[string]     `json:"video_url"`
	IsFeatured      Field[FlexBool]   `json:"is_featured"`
	FeaturedOrder   Field[FlexInt]    `json:"featured_order"`
}

func (in *projectInput) validate(create bool) error {
	return validation.ValidateStruct(in,
		validation.Field(&in.Title, requiredText(create)),
		validation.Field(&in.Description, requiredText(create)),
		validation.Field(&in.Category, requiredText(create)),
		validation.Field(&in.ImageURL, requiredText(create)),
	)
}

func (in *projectInput) record(create bool) backend.Record {
	rec := backend.Record{}
	putText(rec, "title", in.Title)
	putText(rec, "description", in.Description)
	putText(rec, "category", in.Category)
	putText(rec, "image_url", in.ImageURL)
	putList(rec, "tags", in.Tags, create, false)
	putList(rec, "gallery", in.Gallery, create, true)
	putOptionalText(rec, "mobile_image_url", in.MobileImageURL, create)
	putOptionalText(rec, "long_description", in.LongDescription, create)
	putOptionalText(rec, "website_url", in.WebsiteURL, create)
	putOptionalText(rec, "video_url", in.VideoURL, create)

	if in.Metrics.Set || create {
		m := Metrics{
			Improvement: strings.TrimSpace(in.Metrics.Value.Improvement),
			Metric:      strings.TrimSpace(in.Metrics.Value.Metric),
		}
		if in.Metrics.Null || (m.Improvement == "" && m.Metric == "") {
			rec["metrics"] = nil
		} else {
			rec["metrics"] = m
		}
	}
	if in.IsFeatured.Set || create {
		rec["is_featured"] = !in.IsFeatured.Null && bool(in.IsFeatured.Value)
	}
	if in.FeaturedOrder.Set || create {
		if in.FeaturedOrder.Null || !in.FeaturedOrder.Value.Valid {
			rec["featured_order"] = nil
		} else {
			rec["featured_order"] = in.FeaturedOrder.Value.N
		}
	}
	return rec
}

type postInput struct {
	Title       Field[string]     `json:"title"`
	Excerpt     Field[string]     `json:"excerpt"`
	Category    Field[string]     `json:"category"`
	Content     Field[string]     `json:"content"`
	ReadTime    Field[string]     `json:"read_time"`
	Tags        Field[StringList] `json:"tags"`
	ImageURL    Field[string]     `json:"image_url"`
	PublishedAt Field[string]     `json:"published_at"`
}

func (in *postInput) validate(create bool) error {
	return validation.ValidateStruct(in,
		validation.Field(&in.Title, requiredText(create)),
		validation.Field(&in.Excerpt, requiredText(create)),
		validation.Field(&in.Category, requiredText(create)),
		validation.Field(&in.Content, requiredText(create)),
		validation.Field(&in.PublishedAt, validation.By(validTimestamp)),
	)
}

// record builds the columns to write. On create an omitted published_at
// defaults to now.
func (in *postInput) record(create bool, now time.Time) backend.Record {
	rec := backend.Record{}
	putText(rec, "title", in.Title)
	putText(rec, "excerpt", in.Excerpt)
	putText(rec, "category", in.Category)
	putText(rec, "content", in.Content)
	putOptionalText(rec, "read_time", in.ReadTime, create)
	putOptionalText(rec, "image_url", in.ImageURL, create)
	putList(rec, "tags", in.Tags, create, false)

	switch s := strings.TrimSpace(in.PublishedAt.Value); {
	case in.PublishedAt.Set && !in.PublishedAt.Null && s != "":
		t, _ := parseTimestamp(s)
		rec["published_at"] = t
	case create && !in.PublishedAt.Set:
		rec["published_at"] = now.UTC()
	case in.PublishedAt.Set || create:
		rec["published_at"] = nil
	}
	return rec
}

type leadInput struct {
	Name     Field[string] `json:"name"`
	Email    Field[string] `json:"email"`
	Budget   Field[string] `json:"budget"`
	Timeline Field[string] `json:"timeline"`
	Message  Field[string] `json:"message"`
}

func (in *leadInput) validate() error {
	in.Email.Value = normalizeEmail(in.Email.Value)
	return validation.ValidateStruct(in,
		validation.Field(&in.Name, requiredText(true)),
		validation.Field(&in.Email, requiredText(true), validation.By(func(value any) error {
			f, _ := value.(Field[string])
			return validation.Validate(f.Value, is.EmailFormat)
		})),
		validation.Field(&in.Message, requiredText(true)),
	)
}

func (in *leadInput) record() backend.Record {
	rec := backend.Record{
		"email": in.Email.Value,
	}
	putText(rec, "name", in.Name)
	putText(rec, "message", in.Message)
	putOptionalText(rec, "budget", in.Budget, true)
	putOptionalText(rec, "timeline", in.Timeline, true)
	return rec
}
