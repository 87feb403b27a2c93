package main

import (
	"bytes"
	"context"
	"embed"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"image-diff/internal/myhttp"
	"image-diff/internal/storage"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"path"
	"strconv"
	"strings"
	"time"

	diffimage "image-diff/internal/diff/image"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"golang.org/x/xerrors"
)

//go:embed templates/*.html
var templateFS embed.FS

var templates = template.Must(template.ParseFS(templateFS, "templates/*.html"))

const flashCookieName = "flash"

type DiffResponse struct {
	Baseline   string                `json:"baseline"`
	Target     string                `json:"target"`
	Score      float64               `json:"score"`
	DiffAmount float64               `json:"diffAmount"`
	Regions    []diffimage.Rectangle `json:"regions"`
}

type uploadPage struct {
	Flash             string
	AllowedExtensions []string
}

type differencePage struct {
	Error      string
	Images     []template.URL
	Score      float64
	Regions    int
	DiffAmount float64
}

func (s *Server) handleHello(w http.ResponseWriter, r *http.Request) {
	s.render(w, r, http.StatusOK, "hello.html", nil)
}

func (s *Server) handleUploadForm(w http.ResponseWriter, r *http.Request) {
	s.render(w, r, http.StatusOK, "upload_image.html", uploadPage{
		Flash:             popFlash(w, r),
		AllowedExtensions: s.config.AllowedExtensions,
	})
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(s.config.MaxUploadSize); err != nil {
		if errors.Is(err, http.ErrNotMultipart) {
			http.Redirect(w, r, "/upload_image", http.StatusSeeOther)
			return
		}
		myhttp.Logger(r.Context()).Warn(fmt.Sprintf("failed to parse upload: %s", err))
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	// Both parts are validated before either is stored.
	var headers []*multipart.FileHeader
	var filenames []string
	for _, field := range []string{"image_first", "image_second"} {
		file, header, err := r.FormFile(field)
		if err == nil {
			_ = file.Close()
		}
		if err != nil || header.Filename == "" {
			s.redirectWithFlash(w, r, "Please select all image files!")
			return
		}

		filename := storage.SanitizeFilename(header.Filename)
		if filename == "" || !s.allowedFile(filename) {
			s.redirectWithFlash(w, r, fmt.Sprintf("Allowed image types are %s", strings.Join(s.config.AllowedExtensions, ", ")))
			return
		}
		headers = append(headers, header)
		filenames = append(filenames, filename)
	}

	for i, header := range headers {
		if err := s.store(r.Context(), filenames[i], header); err != nil {
			myhttp.Logger(r.Context()).Error(fmt.Sprintf("failed to store upload %s: %s", filenames[i], err))
			http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
			return
		}
	}

	http.Redirect(w, r, "/show_diff?"+url.Values{"filenames": filenames}.Encode(), http.StatusSeeOther)
}

func (s *Server) store(ctx context.Context, filename string, header *multipart.FileHeader) error {
	file, err := header.Open()
	if err != nil {
		return xerrors.Errorf("failed to open upload: %w", err)
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return xerrors.Errorf("failed to read upload: %w", err)
	}
	if _, err := s.storageClient.Put(ctx, path.Join(s.config.UploadPrefix, filename), data); err != nil {
		return xerrors.Errorf("failed to put upload: %w", err)
	}
	return nil
}

func (s *Server) handleShowDiff(w http.ResponseWriter, r *http.Request) {
	invalid := differencePage{Error: "Please select valid images"}

	filenames := r.URL.Query()["filenames"]
	if len(filenames) < 2 {
		s.render(w, r, http.StatusBadRequest, "image_difference.html", invalid)
		return
	}

	var images [2][]byte
	for i, filename := range filenames[:2] {
		if filename == "" || storage.SanitizeFilename(filename) != filename {
			s.render(w, r, http.StatusBadRequest, "image_difference.html", invalid)
			return
		}

		data, err := s.storageClient.Get(r.Context(), s.storageClient.URL(path.Join(s.config.UploadPrefix, filename)))
		if err != nil {
			status := http.StatusInternalServerError
			if errors.Is(err, storage.ErrNotFound) {
				status = http.StatusNotFound
			}
			myhttp.Logger(r.Context()).Warn(fmt.Sprintf("failed to load %s: %s", filename, err))
			s.render(w, r, status, "image_difference.html", invalid)
			return
		}
		images[i] = data
	}

	result, err := s.compare(r.Context(), s.differ, images[0], images[1])
	if err != nil {
		myhttp.Logger(r.Context()).Warn(fmt.Sprintf("failed to compare %v: %s", filenames[:2], err))
		s.render(w, r, statusFor(err), "image_difference.html", invalid)
		return
	}

	mediaType := "image/jpeg"
	if s.differ.Options().Format == "png" {
		mediaType = "image/png"
	}
	s.render(w, r, http.StatusOK, "image_difference.html", differencePage{
		Images: []template.URL{
			dataURL(mediaType, result.Baseline),
			dataURL(mediaType, result.Target),
		},
		Score:      result.Score,
		Regions:    len(result.Regions),
		DiffAmount: result.DiffAmount,
	})
}

func (s *Server) handleDiff(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(s.config.MaxUploadSize); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	options := s.differ.Options()
	overridden := false
	for name, target := range map[string]*int{
		"window_size":     &options.WindowSize,
		"min_region_area": &options.MinRegionArea,
	} {
		v := r.FormValue(name)
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			http.Error(w, fmt.Sprintf("invalid %s: %s", name, v), http.StatusBadRequest)
			return
		}
		*target = n
		overridden = true
	}
	if overridden {
		if options.WindowSize > s.config.MaxWindowSize {
			http.Error(w, fmt.Sprintf("window_size must not exceed %d", s.config.MaxWindowSize), http.StatusBadRequest)
			return
		}
		if err := options.Validate(); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
	}

	baselineData, err := readFormFile(r, "baseline")
	if err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	targetData, err := readFormFile(r, "target")
	if err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	differ := s.differ
	if overridden {
		differ = diffimage.NewSSIMDiff(options)
	}

	result, err := s.compare(r.Context(), differ, baselineData, targetData)
	if err != nil {
		status := statusFor(err)
		if status == http.StatusInternalServerError {
			myhttp.Logger(r.Context()).Error(fmt.Sprintf("failed to compare images: %s", err))
			http.Error(w, http.StatusText(status), status)
			return
		}
		http.Error(w, err.Error(), status)
		return
	}

	regions := result.Regions
	if regions == nil {
		regions = []diffimage.Rectangle{}
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(DiffResponse{
		Baseline:   base64.StdEncoding.EncodeToString(result.Baseline),
		Target:     base64.StdEncoding.EncodeToString(result.Target),
		Score:      result.Score,
		DiffAmount: result.DiffAmount,
		Regions:    regions,
	}); err != nil {
		myhttp.Logger(r.Context()).Error("Failed to encode response", "error", err)
	}
}

func (s *Server) compare(ctx context.Context, differ *diffimage.SSIMDiff, baseline []byte, target []byte) (*diffimage.DiffResult, error) {
	now := time.Now()
	result, err := differ.Compare(baseline, target)
	s.comparisonDurationMicroSeconds.Record(ctx, time.Since(now).Microseconds())
	s.comparisonsTotal.Add(ctx, 1, metric.WithAttributes(attribute.Key("result").String(resultLabel(err))))
	if err != nil {
		return nil, err
	}

	s.regions.Record(ctx, int64(len(result.Regions)))
	return result, nil
}

func resultLabel(err error) string {
	var decodeError *diffimage.DecodeError
	var shapeMismatchError *diffimage.ShapeMismatchError
	var encodeError *diffimage.EncodeError
	switch {
	case err == nil:
		return "success"
	case errors.As(err, &decodeError):
		return "decode_error"
	case errors.As(err, &shapeMismatchError):
		return "shape_mismatch"
	case errors.As(err, &encodeError):
		return "encode_error"
	default:
		return "invalid_input"
	}
}

func statusFor(err error) int {
	var encodeError *diffimage.EncodeError
	if errors.As(err, &encodeError) {
		return http.StatusInternalServerError
	}

	var decodeError *diffimage.DecodeError
	var shapeMismatchError *diffimage.ShapeMismatchError
	if errors.As(err, &decodeError) ||
		errors.As(err, &shapeMismatchError) ||
		errors.Is(err, diffimage.ErrInvalidWindowSize) ||
		errors.Is(err, diffimage.ErrImageTooSmall) {
		return http.StatusBadRequest
	}

	return http.StatusInternalServerError
}

func (s *Server) allowedFile(filename string) bool {
	i := strings.LastIndex(filename, ".")
	if i < 0 {
		return false
	}
	extension := strings.ToLower(filename[i+1:])
	for _, allowed := range s.config.AllowedExtensions {
		if extension == allowed {
			return true
		}
	}
	return false
}

func (s *Server) redirectWithFlash(w http.ResponseWriter, r *http.Request, message string) {
	http.SetCookie(w, &http.Cookie{
		Name:     flashCookieName,
		Value:    url.QueryEscape(message),
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	http.Redirect(w, r, "/upload_image", http.StatusSeeOther)
}

// popFlash returns the pending flash message and clears it.
func popFlash(w http.ResponseWriter, r *http.Request) string {
	cookie, err := r.Cookie(flashCookieName)
	if err != nil {
		return ""
	}
	http.SetCookie(w, &http.Cookie{
		Name:   flashCookieName,
		Path:   "/",
		MaxAge: -1,
	})

	message, err := url.QueryUnescape(cookie.Value)
	if err != nil {
		return ""
	}
	return message
}

func (s *Server) render(w http.ResponseWriter, r *http.Request, status int, name string, data any) {
	var buffer bytes.Buffer
	if err := templates.ExecuteTemplate(&buffer, name, data); err != nil {
		myhttp.Logger(r.Context()).Error(fmt.Sprintf("failed to render %s: %s", name, err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = buffer.WriteTo(w)
}

func readFormFile(r *http.Request, field string) ([]byte, error) {
	file, _, err := r.FormFile(field)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	return io.ReadAll(file)
}

func dataURL(mediaType string, data []byte) template.URL {
	return template.URL("data:" + mediaType + ";base64," + base64.StdEncoding.EncodeToString(data))
}
