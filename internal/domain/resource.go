package domain

// ResourceKind identifies the snapshot strategy for a resource.
type ResourceKind string

const (
	ResourceFile      ResourceKind = "file"
	ResourceDirectory ResourceKind = "directory"
	ResourceService   ResourceKind = "service"
	ResourceUnknown   ResourceKind = "unknown"
)

// ResourceDescriptor names one host resource a command touches.
// Path holds the filesystem path, or the service name for service resources.
type ResourceDescriptor struct {
	Kind ResourceKind `json:"kind"`
	Path string       `json:"path"`
}

func (r ResourceDescriptor) String() string {
	return string(r.Kind) + ":" + r.Path
}
