package handlers

import (
	"errors"
	"io"

	"github.com/geocoder89/faceauth/internal/imaging"
	"github.com/gin-gonic/gin"
)

// stageFormImage pulls the "image" part out of a multipart request and
// stages it. On failure it has already written the response. The caller owns
// the returned handle and must release it on every path.
func stageFormImage(ctx *gin.Context, staging *imaging.Manager) (*imaging.StagedImage, bool) {
	fh, err := ctx.FormFile("image")

	if err != nil {
		RespondBadRequest(ctx, "missing_image", "An image file is required.", nil)
		return nil, false
	}

	f, err := fh.Open()

	if err != nil {
		RespondBadRequest(ctx, "invalid_image", "Could not read the uploaded image.", nil)
		return nil, false
	}

	defer f.Close()

	raw, err := io.ReadAll(f)

	if err != nil {
		RespondBadRequest(ctx, "invalid_image", "Could not read the uploaded image.", nil)
		return nil, false
	}

	img, err := staging.Stage(raw)

	if err != nil {
		if errors.Is(err, imaging.ErrInvalidImage) {
			RespondBadRequest(ctx, "invalid_image", "The uploaded file is not a readable image.", nil)
			return nil, false
		}

		RespondInternal(ctx, "Could not process the uploaded image.")
		return nil, false
	}

	return img, true
}
