package pickup

type IDGenerator interface {
	NewID() string
}
