// Package router assembles the gin engine and the versioned API groups.
package router

import (
	"net/http"
	"path"

	"github.com/gin-gonic/gin"
)

// apiPrefix is where the versioned API is mounted
const apiPrefix = "/api/v1"

// resource is the routes of one handler under a shared prefix and middleware
type resource struct {
	prefix     string
	middleware []gin.HandlerFunc
	routes     []route
}

type route struct {
	method  string
	path    string
	handler gin.HandlerFunc
}

func newResource(prefix string, middleware ...gin.HandlerFunc) *resource {
	return &resource{prefix: prefix, middleware: middleware}
}

func (r *resource) get(p string, h gin.HandlerFunc) *resource {
	return r.handle(http.MethodGet, p, h)
}

func (r *resource) post(p string, h gin.HandlerFunc) *resource {
	return r.handle(http.MethodPost, p, h)
}

func (r *resource) patch(p string, h gin.HandlerFunc) *resource {
	return r.handle(http.MethodPatch, p, h)
}

func (r *resource) handle(method, p string, h gin.HandlerFunc) *resource {
	r.routes = append(r.routes, route{method: method, path: p, handler: h})
	return r
}

// mount registers every resource below parent and returns "METHOD /path" for
// each route added
func mount(parent *gin.RouterGroup, resources ...*resource) []string {
	var added []string
	for _, res := range resources {
		g := parent.Group(res.prefix, res.middleware...)
		for _, rt := range res.routes {
			g.Handle(rt.method, rt.path, rt.handler)
			added = append(added, rt.method+" "+path.Join(g.BasePath(), rt.path))
		}
	}
	return added
}
