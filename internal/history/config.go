package history

type Config struct {
	// MaxPerRepository caps the records kept per repository; zero keeps all.
	MaxPerRepository int
}
