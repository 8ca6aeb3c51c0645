package handlers

import (
	_ "embed"
	"net/http"

	httpSwagger "github.com/swaggo/http-swagger"
)

//go:embed docs/swagger.json
var swaggerDoc []byte

const swaggerDocPath = "/swagger/doc.json"

// SwaggerDoc serves the embedded API description.
func SwaggerDoc(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(swaggerDoc)
}

// SwaggerUI serves the swagger UI pointed at SwaggerDoc.
func SwaggerUI() http.HandlerFunc {
	return httpSwagger.Handler(httpSwagger.URL(swaggerDocPath))
}

func Health(w http.ResponseWriter, r *http.Request) {
	if err := writeJSON(w, http.StatusOK, jsonResponse{"status": "ok"}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}
