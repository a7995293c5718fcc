package classindex

// Stats summarises one root for display.
type Stats struct {
	Classes    int
	TotalFiles int
	MinFiles   int
	MaxFiles   int
}

// Summarize computes file counts across classes.
func Summarize(classes []Class) Stats {
	stats := Stats{Classes: len(classes)}
	for i, class := range classes {
		n := len(class.Files)
		stats.TotalFiles += n
		if i == 0 || n < stats.MinFiles {
			stats.MinFiles = n
		}
		if n > stats.MaxFiles {
			stats.MaxFiles = n
		}
	}
	return stats
}

// Stats summarises the classes of mode.
func (i *Index) Stats(mode Mode) Stats {
	return Summarize(i.Split(mode))
}

// Eligible returns the number of classes with at least nimg files.
func Eligible(classes []Class, nimg int) int {
	count := 0
	for _, class := range classes {
		if len(class.Files) >= nimg {
			count++
		}
	}
	return count
}
