package adapters

import (
	"encoding/json"
	"io"
	"log"
	"strconv"
	"sync"
	"time"

	"github.com/abema/netwatch/core"
	"github.com/abema/netwatch/internal/file"
	"github.com/abema/netwatch/rum"
)

// OnResourceKindFilter passes only resources of the given kinds to handler.
func OnResourceKindFilter(handler rum.OnResourceHandler, kinds ...core.ResourceKind) rum.OnResourceHandler {
	return func(resource *rum.Resource) {
		for _, kind := range kinds {
			if resource.Kind == kind {
				handler(resource)
				return
			}
		}
	}
}

type ResourceLogConfig struct {
	// Flag is log flag defined standard log package.
	// When JSON option is true, this option is ignored.
	Flag int
	JSON bool
}

func ResourceLogger(config *ResourceLogConfig, w io.Writer) rum.OnResourceHandler {
	var mutex sync.Mutex
	return func(resource *rum.Resource) {
		mutex.Lock()
		defer mutex.Unlock()
		writeResource(config, w, resource)
	}
}

func FileResourceLogger(config *ResourceLogConfig, name string) rum.OnResourceHandler {
	var mutex sync.Mutex
	return func(resource *rum.Resource) {
		mutex.Lock()
		defer mutex.Unlock()
		file, err := file.Append(name)
		if err != nil {
			log.Printf("ERROR: failed to open log file: %s: %s", name, err)
			return
		}
		defer file.Close()
		writeResource(config, file, resource)
	}
}

func writeResource(config *ResourceLogConfig, w io.Writer, resource *rum.Resource) {
	if config.JSON {
		json.NewEncoder(w).Encode(map[string]interface{}{
			"resource": resource,
			"time":     time.Now().Format(time.RFC3339),
		})
		return
	}
	logger := log.New(w, "", config.Flag)
	logger.Printf("RESOURCE: %s %s %s: status=%d duration=%s%s",
		resource.Kind, resource.Method, resource.URL, resource.Status,
		resource.Duration, formatDetails(resource))
}

func formatDetails(resource *rum.Resource) string {
	var s string
	if resource.Size != nil {
		s += " size=" + strconv.FormatInt(*resource.Size, 10)
	}
	d := resource.Details
	if d == nil {
		return s
	}
	phase := func(name string, t *core.Timing) {
		if t != nil {
			s += " " + name + "=" + t.Duration.String()
		}
	}
	phase("redirect", d.Redirect)
	phase("dns", d.DNS)
	phase("connect", d.Connect)
	phase("ssl", d.SSL)
	phase("firstByte", &d.FirstByte)
	phase("download", &d.Download)
	return s
}
