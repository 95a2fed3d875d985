package dto

import "strings"

// CameraCreateRequest is the body of POST /cameras/.
type CameraCreateRequest struct {
	Name      string `json:"name"`
	SourceURL string `json:"source_url"`
	Location  string `json:"location"`
}

// Validate reports the first missing required field.
func (r *CameraCreateRequest) Validate() string {
	if strings.TrimSpace(r.Name) == "" {
		return "name is required"
	}
	if strings.TrimSpace(r.SourceURL) == "" {
		return "source_url is required"
	}
	return ""
}
