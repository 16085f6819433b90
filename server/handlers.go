package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"strings"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/gofiber/fiber/v2"

	"github.com/kacy/cryptonet"
	"github.com/kacy/cryptonet/imaging"
	"github.com/kacy/cryptonet/registry"
)

// MIMEApplicationCBOR selects CBOR request decoding.
const MIMEApplicationCBOR = "application/cbor"

// Request bodies. Images travel either as a base64 data URL or as raw
// encoded bytes (base64 in JSON, a byte string in CBOR).
type (
	enrollRequest struct {
		Image      string                 `json:"image,omitempty"`
		ImageBytes []byte                 `json:"image_bytes,omitempty"`
		Config     cryptonet.EnrollConfig `json:"config"`
	}

	predictRequest struct {
		Image      string                  `json:"image,omitempty"`
		ImageBytes []byte                  `json:"image_bytes,omitempty"`
		Config     cryptonet.PredictConfig `json:"config"`
	}

	validateRequest struct {
		Image      string                `json:"image,omitempty"`
		ImageBytes []byte                `json:"image_bytes,omitempty"`
		Config     cryptonet.ValidConfig `json:"config"`
	}

	embeddingsRequest struct {
		EmbeddingA []byte `json:"embedding_a"`
		EmbeddingB []byte `json:"embedding_b"`
	}

	faceEmbeddingRequest struct {
		Image      string                           `json:"image,omitempty"`
		ImageBytes []byte                           `json:"image_bytes,omitempty"`
		Embedding  []byte                           `json:"embedding"`
		Config     cryptonet.FaceAndEmbeddingConfig `json:"config"`
	}

	documentFaceRequest struct {
		Document      string                          `json:"document,omitempty"`
		DocumentBytes []byte                          `json:"document_bytes,omitempty"`
		Selfie        string                          `json:"selfie,omitempty"`
		SelfieBytes   []byte                          `json:"selfie_bytes,omitempty"`
		Config        cryptonet.DocumentAndFaceConfig `json:"config"`
	}
)

type errorResponse struct {
	Error     string `json:"error"`
	Kind      string `json:"kind,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}

func (s *Server) health(c *fiber.Ctx) error {
	s.mu.Lock()
	state := s.client.State()
	s.mu.Unlock()

	return c.JSON(fiber.Map{
		"status":  "ok",
		"session": state.String(),
		"time":    time.Now(),
	})
}

func (s *Server) version(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"version": s.client.Version()})
}

func (s *Server) openSession(c *fiber.Ctx) error {
	settings := string(c.Body())
	if strings.TrimSpace(settings) == "" {
		settings = s.settings
	}

	_, err := s.do(func() (string, error) {
		return "", s.client.InitializeSession(c.UserContext(), settings)
	})
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"session": cryptonet.StateActive.String()})
}

func (s *Server) closeSession(c *fiber.Ctx) error {
	_, err := s.do(func() (string, error) {
		return "", s.client.DeinitializeSession(c.UserContext())
	})
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"session": cryptonet.StateClosed.String()})
}

func (s *Server) enroll(c *fiber.Ctx) error {
	req := enrollRequest{Config: cryptonet.NewEnrollConfig()}
	if err := decodeBody(c, &req); err != nil {
		return err
	}
	img, err := decodeImage("image", req.Image, req.ImageBytes)
	if err != nil {
		return err
	}

	result, err := s.do(func() (string, error) {
		return s.client.Enroll(c.UserContext(), img, req.Config)
	})
	if err != nil {
		return err
	}

	s.recordEnrollment(c, result)
	return sendResult(c, result)
}

func (s *Server) predict(c *fiber.Ctx) error {
	req := predictRequest{Config: cryptonet.NewPredictConfig()}
	if err := decodeBody(c, &req); err != nil {
		return err
	}
	img, err := decodeImage("image", req.Image, req.ImageBytes)
	if err != nil {
		return err
	}

	result, err := s.do(func() (string, error) {
		return s.client.Predict(c.UserContext(), img, req.Config)
	})
	if err != nil {
		return err
	}
	return sendResult(c, result)
}

func (s *Server) validate(c *fiber.Ctx) error {
	req := validateRequest{Config: cryptonet.NewValidConfig()}
	if err := decodeBody(c, &req); err != nil {
		return err
	}
	img, err := decodeImage("image", req.Image, req.ImageBytes)
	if err != nil {
		return err
	}

	result, err := s.do(func() (string, error) {
		return s.client.Validate(c.UserContext(), img, req.Config)
	})
	if err != nil {
		return err
	}
	return sendResult(c, result)
}

func (s *Server) deleteUser(c *fiber.Ctx) error {
	puid := c.Params("puid")

	result, err := s.do(func() (string, error) {
		return s.client.Delete(c.UserContext(), puid)
	})
	if err != nil {
		return err
	}

	if err := s.registry.Delete(c.UserContext(), puid); err != nil && !errors.Is(err, registry.ErrNotFound) {
		s.logger.Warn("failed to remove registry record",
			"puid", puid,
			"request_id", requestIDOf(c),
			"error", err,
		)
	}
	return sendResult(c, result)
}

func (s *Server) getUser(c *fiber.Ctx) error {
	rec, err := s.registry.Get(c.UserContext(), c.Params("puid"))
	if err != nil {
		return err
	}
	return c.JSON(rec)
}

func (s *Server) listUsers(c *fiber.Ctx) error {
	recs, err := s.registry.List(c.UserContext())
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"users": recs})
}

func (s *Server) compareEmbeddings(c *fiber.Ctx) error {
	var req embeddingsRequest
	if err := decodeBody(c, &req); err != nil {
		return err
	}

	result, err := s.do(func() (string, error) {
		return s.client.CompareEmbeddings(c.UserContext(), req.EmbeddingA, req.EmbeddingB)
	})
	if err != nil {
		return err
	}
	return sendResult(c, result)
}

func (s *Server) compareFaceAndEmbedding(c *fiber.Ctx) error {
	req := faceEmbeddingRequest{Config: cryptonet.NewFaceAndEmbeddingConfig()}
	if err := decodeBody(c, &req); err != nil {
		return err
	}
	img, err := decodeImage("image", req.Image, req.ImageBytes)
	if err != nil {
		return err
	}

	result, err := s.do(func() (string, error) {
		return s.client.CompareFaceAndEmbedding(c.UserContext(), img, req.Embedding, req.Config)
	})
	if err != nil {
		return err
	}
	return sendResult(c, result)
}

func (s *Server) compareDocumentAndFace(c *fiber.Ctx) error {
	req := documentFaceRequest{Config: cryptonet.NewDocumentAndFaceConfig()}
	if err := decodeBody(c, &req); err != nil {
		return err
	}
	document, err := decodeImage("document", req.Document, req.DocumentBytes)
	if err != nil {
		return err
	}
	selfie, err := decodeImage("selfie", req.Selfie, req.SelfieBytes)
	if err != nil {
		return err
	}

	result, err := s.do(func() (string, error) {
		return s.client.CompareDocumentAndFace(c.UserContext(), document, selfie, req.Config)
	})
	if err != nil {
		return err
	}
	return sendResult(c, result)
}

// recordEnrollment stores the identifiers from an enroll result. Failures are
// logged only: the engine has already enrolled the user.
func (s *Server) recordEnrollment(c *fiber.Ctx, result string) {
	rec, err := registry.FromResult(result)
	if err != nil {
		s.logger.Debug("enroll result carries no user id", "request_id", requestIDOf(c), "error", err)
		return
	}

	rec.EnrolledAt = time.Now()
	rec.Source = requestIDOf(c)
	if err := s.registry.Put(c.UserContext(), rec); err != nil {
		s.logger.Warn("failed to record enrollment",
			"puid", rec.PUID,
			"request_id", rec.Source,
			"error", err,
		)
	}
}

func (s *Server) handleError(c *fiber.Ctx, err error) error {
	code := statusFor(err)

	resp := errorResponse{
		Error:     err.Error(),
		RequestID: requestIDOf(c),
	}
	if kind := cryptonet.KindOf(err); kind != 0 {
		resp.Kind = kind.String()
	}

	if code >= fiber.StatusInternalServerError {
		s.logger.Error("request failed",
			"method", c.Method(),
			"path", c.Path(),
			"status", code,
			"request_id", resp.RequestID,
			"error", err,
		)
	}
	return c.Status(code).JSON(resp)
}

func statusFor(err error) int {
	var fe *fiber.Error
	if errors.As(err, &fe) {
		return fe.Code
	}

	switch {
	case errors.Is(err, registry.ErrNotFound):
		return fiber.StatusNotFound
	case errors.Is(err, cryptonet.ErrSessionActive):
		return fiber.StatusConflict
	}

	switch cryptonet.KindOf(err) {
	case cryptonet.KindNoSession:
		return fiber.StatusConflict
	case cryptonet.KindNoJSON:
		return fiber.StatusBadGateway
	case cryptonet.KindOperationFailed:
		return fiber.StatusUnprocessableEntity
	}
	return fiber.StatusInternalServerError
}

func decodeBody(c *fiber.Ctx, v any) error {
	body := c.Body()
	if len(body) == 0 {
		return fiber.NewError(fiber.StatusBadRequest, "request body is required")
	}

	var err error
	if strings.HasPrefix(c.Get(fiber.HeaderContentType), MIMEApplicationCBOR) {
		err = cbor.Unmarshal(body, v)
	} else {
		err = json.Unmarshal(body, v)
	}
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body: "+err.Error())
	}
	return nil
}

func decodeImage(field, dataURL string, raw []byte) (image.Image, error) {
	var (
		img image.Image
		err error
	)
	switch {
	case len(raw) > 0:
		img, err = imaging.DecodeBytes(raw)
	case dataURL != "":
		img, err = imaging.DecodeDataURL(dataURL)
	default:
		return nil, fiber.NewError(fiber.StatusBadRequest, field+" is required")
	}

	if err != nil {
		code := fiber.StatusBadRequest
		if errors.Is(err, imaging.ErrUnsupportedType) {
			code = fiber.StatusUnsupportedMediaType
		}
		return nil, fiber.NewError(code, fmt.Sprintf("invalid %s: %v", field, err))
	}
	return img, nil
}

func sendResult(c *fiber.Ctx, result string) error {
	c.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	return c.SendString(result)
}
