package record

// names is the reference table behind the read-only store: the id of a name is
// its position.
var names = [...]string{
	"Aitor", "Ander", "Andoni", "Asier", "Eneko", "Gorka", "Koldo", "Mattin", "Xabier",
	"Galder", "Iker", "Unai", "Jon", "Markel", "Hodei", "Kepa", "Gaizka", "Imanol",
	"Amaia", "Ane", "Arantxa", "Edurne", "Josune", "Maialen", "Maite", "Miren", "Leire",
	"Nekane", "Oihana", "Elaia", "Nahia", "Nerea", "Izaro", "Neskutz", "Itxaso",
}

// Names returns a copy of the reference name table.
func Names() []string {
	out := make([]string, len(names))
	copy(out, names[:])
	return out
}

// NameCount is the size of the reference name table.
const NameCount = len(names)
