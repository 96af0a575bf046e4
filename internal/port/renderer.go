package port

import "context"

type Renderer interface {
	// Render combines one audio file and one still image into a video at
	// outputPath, truncated to the probed audio duration.
	Render(ctx context.Context, audioPath, imagePath, outputPath string) (string, error)
}
