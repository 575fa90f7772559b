package pe

const (
	ImageDOSSignature   = 0x5A4D // MZ
	ImageDOSZMSignature = 0x4D5A // ZM
)

const ImageNTHeaderSignature = 0x00004550

const (
	ImageNtOptionalHdr32Magic = 0x10b
	ImageNtOptionalHdr64Magic = 0x20b
)

// IMAGE_DIRECTORY_ENTRY constants
const (
	ImageDirectoryEntryExport        = 0
	ImageDirectoryEntryImport        = 1
	ImageDirectoryEntryResource      = 2
	ImageDirectoryEntryException     = 3
	ImageDirectoryEntrySecurity      = 4
	ImageDirectoryEntryBaseReLoc     = 5
	ImageDirectoryEntryDebug         = 6
	ImageDirectoryEntryArchitecture  = 7
	ImageDirectoryEntryGlobalPtr     = 8
	ImageDirectoryEntryTls           = 9
	ImageDirectoryEntryLoadConfig    = 10
	ImageDirectoryEntryBoundImport   = 11
	ImageDirectoryEntryIat           = 12
	ImageDirectoryEntryDelayImport   = 13
	ImageDirectoryEntryComDescriptor = 14
)

// ImageNumberOfDirectoryEntries is the size of the optional header's data directory array.
const ImageNumberOfDirectoryEntries = 16

// IMAGE_REL_BASED constants. The relocation engine applies only HIGHLOW and
// DIR64; ABSOLUTE entries are padding.
const (
	RelBasedAbsolute = 0
	RelBasedHigh     = 1
	RelBasedLow      = 2
	RelBasedHighLow  = 3
	RelBasedHighAdj  = 4
	RelBasedDir64    = 0xA
)

const (
	ImageScnMemExecute = 0x20000000
	ImageScnMemRead    = 0x40000000
	ImageScnMemWrite   = 0x80000000
)

const (
	baseRelocationSize = 8
	relocEntrySize     = 2
	dataDirectorySize  = 8
	sectionHeaderSize  = 40
)

var (
	DOSHeaderSize  = 64
	FileHeaderSize = 20
)
