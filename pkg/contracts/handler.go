package contracts

import "github.com/julienschmidt/httprouter"

// Handler is implemented by every module handler; the application mounts
// each one onto the shared router.
type Handler interface {
	RegisterRoutes(*httprouter.Router)
}
