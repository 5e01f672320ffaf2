package sandbox

// GetDockerImage returns the image used to run interpreter.
// A custom image in config takes precedence.
func GetDockerImage(interpreter string, config Config) string {
	if config.DockerImage != "" {
		return config.DockerImage
	}

	switch interpreter {
	case "python3", "python":
		return "python:3.12-alpine"
	case "node":
		return "node:alpine"
	default:
		return "alpine:latest"
	}
}
