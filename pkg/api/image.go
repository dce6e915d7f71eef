package api

// Model capabilities. Only chat models take part in routing.
const (
	CapabilityChat  = "chat"
	CapabilityImage = "image"
)

// ImageRequest follows the OpenAI images API.
type ImageRequest struct {
	Model   string `json:"model" binding:"required"`
	Prompt  string `json:"prompt" binding:"required"`
	N       int    `json:"n,omitempty" binding:"omitempty,min=1,max=10"`
	Size    string `json:"size,omitempty" binding:"omitempty,oneof=256x256 512x512 1024x1024 1792x1024 1024x1792"`
	Quality string `json:"quality,omitempty" binding:"omitempty,oneof=standard hd"`
}

// Dimensions splits Size into width and height, defaulting to 1024x1024.
func (r *ImageRequest) Dimensions() (int, int) {
	switch r.Size {
	case "256x256":
		return 256, 256
	case "512x512":
		return 512, 512
	case "1792x1024":
		return 1792, 1024
	case "1024x1792":
		return 1024, 1792
	default:
		return 1024, 1024
	}
}

type ImageResponse struct {
	ID       string      `json:"id,omitempty"`
	Created  int64       `json:"created"`
	Model    string      `json:"model"`
	Provider string      `json:"provider,omitempty"`
	Data     []ImageData `json:"data"`
}

// URLs returns every hosted image url, in order.
func (r *ImageResponse) URLs() []string {
	out := make([]string, 0, len(r.Data))
	for _, d := range r.Data {
		if d.URL != "" {
			out = append(out, d.URL)
		}
	}
	return out
}

type ImageData struct {
	URL           string `json:"url,omitempty"`
	B64JSON       string `json:"b64_json,omitempty"`
	RevisedPrompt string `json:"revised_prompt,omitempty"`
}
