package cmdcore

type Mode string

const (
	ModeProcess   Mode = "process"
	ModeInProcess Mode = "inprocess"
)

type Config struct {
	Mode       Mode
	Executable string
	Env        []string
}
