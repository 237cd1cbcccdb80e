package buildinfo

const Graffiti = " _____ _____ ___  _____ ___________ \n|_   _|  ___/ _ \\/  ___|  ___| ___ \\\n  | | | |__/ /_\\ \\ `--.| |__ | |_/ /\n  | | |  __|  _  |`--. \\  __||    / \n  | | | |__| | | /\\__/ / |___| |\\ \\ \n  \\_/ \\____|_| |_|____/\\____/\\_| \\_|\n\n"

var (
	BuildTag string = "v0.0.0"
	Name     string = "TEASER"
	Time     string = ""
)

type buildinfo struct{}

func (buildinfo) Tag() string {
	return BuildTag
}

func (buildinfo) Name() string {
	return Name
}

func (buildinfo) Time() string {
	return Time
}

var Info buildinfo
